package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/model"
)

// SQLiteStore keeps state rows in a SQLite database. Prices are stored as
// canonical decimal text so that comparisons in SQL are exact.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.GetLogger().WithComponent("store").WithField("path", dbPath).Info("sqlite state store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS extremum_state (
		key          TEXT PRIMARY KEY,
		session_date TEXT NOT NULL,
		running_high TEXT NOT NULL,
		running_low  TEXT NOT NULL,
		updated_at   INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*model.ExtremumState, error) {
	var (
		state     model.ExtremumState
		high, low string
		updated   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_date, running_high, running_low, updated_at FROM extremum_state WHERE key = ?`, key,
	).Scan(&state.SessionDate, &high, &low, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	if state.RunningHigh, err = decimal.NewFromString(high); err != nil {
		return nil, fmt.Errorf("decode running_high %q: %w", high, err)
	}
	if state.RunningLow, err = decimal.NewFromString(low); err != nil {
		return nil, fmt.Errorf("decode running_low %q: %w", low, err)
	}
	state.UpdatedAt = time.UnixMilli(updated).UTC()
	return &state, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, state *model.ExtremumState) error {
	if state == nil {
		return fmt.Errorf("put state %q: nil state", key)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO extremum_state
		(key, session_date, running_high, running_low, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			session_date = excluded.session_date,
			running_high = excluded.running_high,
			running_low  = excluded.running_low,
			updated_at   = excluded.updated_at`,
		key, state.SessionDate, state.RunningHigh.String(), state.RunningLow.String(), state.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompareAndSwap(ctx context.Context, key string, old, next *model.ExtremumState) (bool, error) {
	if next == nil {
		return false, fmt.Errorf("swap state %q: nil state", key)
	}
	var (
		res sql.Result
		err error
	)
	if old == nil {
		res, err = s.db.ExecContext(ctx, `INSERT INTO extremum_state
			(key, session_date, running_high, running_low, updated_at)
			VALUES (?,?,?,?,?)
			ON CONFLICT(key) DO NOTHING`,
			key, next.SessionDate, next.RunningHigh.String(), next.RunningLow.String(), next.UpdatedAt.UnixMilli(),
		)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE extremum_state SET
			session_date = ?, running_high = ?, running_low = ?, updated_at = ?
			WHERE key = ? AND session_date = ? AND running_high = ? AND running_low = ?`,
			next.SessionDate, next.RunningHigh.String(), next.RunningLow.String(), next.UpdatedAt.UnixMilli(),
			key, old.SessionDate, old.RunningHigh.String(), old.RunningLow.String(),
		)
	}
	if err != nil {
		return false, fmt.Errorf("swap state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) Close() error {
	logger.GetLogger().WithComponent("store").Info("closing sqlite state store")
	return s.db.Close()
}
