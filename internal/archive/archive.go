package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/model"
)

// Uploader copies a finished archive file to remote storage.
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

// Archiver writes <Dir>/<SYMBOL>/<SYMBOL>_<date>.<ext>, overwriting the file
// on every check of the same session.
type Archiver struct {
	Dir      string
	Saver    Saver
	Uploader Uploader // optional
}

// New returns an Archiver for format, or an error for unknown formats.
func New(dir, format string, up Uploader) (*Archiver, error) {
	s := NewSaver(format)
	if s == nil {
		return nil, fmt.Errorf("archive: unsupported format %q (use csv, parquet, json)", format)
	}
	return &Archiver{Dir: dir, Saver: s, Uploader: up}, nil
}

// Key is the path of a session file relative to Dir, slash separated.
func (a *Archiver) Key(symbol, session string) string {
	name := fmt.Sprintf("%s_%s.%s", symbol, session, a.Saver.Extension())
	return filepath.ToSlash(filepath.Join(sanitize(symbol), sanitize(name)))
}

// Save writes the session's bars and uploads them when an Uploader is set.
// It returns the local path.
func (a *Archiver) Save(ctx context.Context, symbol, session string, bars []model.Bar) (string, error) {
	if len(bars) == 0 {
		return "", nil
	}
	key := a.Key(symbol, session)
	path := filepath.Join(a.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	if err := a.Saver.Save(bars, path); err != nil {
		return "", fmt.Errorf("save archive %s: %w", path, err)
	}

	log := logger.GetLogger().WithComponent("archive").WithFields(logger.Fields{
		"path": path,
		"bars": len(bars),
	})
	log.Debug("archived session bars")

	if a.Uploader != nil {
		if err := a.Uploader.Upload(ctx, key, path); err != nil {
			return path, fmt.Errorf("upload archive %s: %w", key, err)
		}
		log.WithField("key", key).Debug("uploaded archive")
	}
	return path, nil
}

func sanitize(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '^', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}
