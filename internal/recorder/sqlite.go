package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"ExtremaSentinel/internal/logger"
)

// SQLiteRecorder persists the check and alert history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.GetLogger().WithComponent("recorder").WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checks (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			run_id       TEXT,
			symbol       TEXT,
			session_date TEXT,
			outcome      TEXT,
			bars         INTEGER,
			high         TEXT,
			low          TEXT,
			alerts       INTEGER,
			gaps         INTEGER,
			persisted    INTEGER,
			error        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checks_ts ON checks(timestamp)`,

		`CREATE TABLE IF NOT EXISTS alerts (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			run_id       TEXT,
			symbol       TEXT,
			session_date TEXT,
			kind         TEXT,
			value        TEXT,
			bar_time     INTEGER,
			delivered    INTEGER,
			error        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_session ON alerts(symbol, session_date)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCheck(evt *CheckEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO checks
		(timestamp, run_id, symbol, session_date, outcome, bars, high, low, alerts, gaps, persisted, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		evt.At.Unix(), evt.RunID, evt.Symbol, evt.SessionDate, evt.Outcome, evt.Bars,
		evt.High.String(), evt.Low.String(), evt.Alerts, evt.Gaps, evt.Persisted, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordAlert(rec *AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO alerts
		(timestamp, run_id, symbol, session_date, kind, value, bar_time, delivered, error)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.At.Unix(), rec.RunID, rec.Symbol, rec.SessionDate, rec.Kind,
		rec.Value.String(), rec.BarTime.Unix(), rec.Delivered, rec.Error,
	)
	return err
}

// CountAlerts returns how many alerts were recorded for a session.
func (r *SQLiteRecorder) CountAlerts(symbol, sessionDate string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE symbol = ? AND session_date = ?`,
		symbol, sessionDate).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	logger.GetLogger().WithComponent("recorder").Info("closing sqlite recorder")
	return r.db.Close()
}
