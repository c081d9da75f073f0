package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// CSVJournal appends every alert to <Dir>/alerts_YYYYMMDD.csv. Checks are
// not journaled.
type CSVJournal struct {
	mu  sync.Mutex
	Dir string
	Loc *time.Location
}

func NewCSVJournal(dir string, loc *time.Location) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CSVJournal{Dir: dir, Loc: loc}, nil
}

func (j *CSVJournal) RecordCheck(_ *CheckEvent) error { return nil }

// RecordAlert appends a single alert row into alerts_YYYYMMDD.csv.
func (j *CSVJournal) RecordAlert(rec *AlertRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	at := rec.At.In(j.Loc)
	filename := filepath.Join(j.Dir, fmt.Sprintf("alerts_%s.csv", at.Format("20060102")))
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		at.Format(time.RFC3339),
		rec.Symbol,
		rec.SessionDate,
		rec.Kind,
		rec.Value.String(),
		rec.BarTime.In(j.Loc).Format(time.RFC3339),
		strconv.FormatBool(rec.Delivered),
		rec.RunID,
		rec.Error,
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) Close() error { return nil }
