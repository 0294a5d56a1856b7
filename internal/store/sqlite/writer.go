package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tradepulse/internal/indicator"
	"tradepulse/internal/model"
	"tradepulse/internal/profile"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite store.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/analysis.db"
}

// Store is a single-writer SQLite store for closed candles, finalized
// session profiles and indicator checkpoints.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and ensures the schema.
func New(cfg WriterConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			instrument_key TEXT    NOT NULL,
			tf             INTEGER NOT NULL,
			ts             INTEGER NOT NULL,
			open           INTEGER NOT NULL,
			high           INTEGER NOT NULL,
			low            INTEGER NOT NULL,
			close          INTEGER NOT NULL,
			volume         INTEGER,
			oi             INTEGER,
			vwap           INTEGER,
			ticks_count    INTEGER,
			PRIMARY KEY (instrument_key, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS historical_profiles (
			instrument_key TEXT NOT NULL,
			date           TEXT NOT NULL,
			data           TEXT NOT NULL,
			PRIMARY KEY (instrument_key, date)
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			instrument_key TEXT    NOT NULL,
			tf             INTEGER NOT NULL,
			name           TEXT    NOT NULL,
			data           TEXT    NOT NULL,
			updated_at     INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (instrument_key, tf, name)
		);
	`)
	return err
}

// Run reads closed candles from candleCh and inserts them in batched
// transactions. Flushes every batchSize candles OR every flushDelay,
// whichever comes first. Blocks until ctx is cancelled or candleCh closes.
func (s *Store) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (s *Store) insertBatch(candles []model.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (instrument_key, tf, ts, open, high, low, close, volume, oi, vwap, ticks_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.InstrumentKey, c.TF, c.TS.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.OpenInterest, c.Vwap, c.TicksCount)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveProfile upserts a finalized session profile keyed by (instrument, date).
func (s *Store) SaveProfile(ctx context.Context, h profile.HistoricalProfile) error {
	data, err := h.Marshal()
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO historical_profiles (instrument_key, date, data)
		VALUES (?, ?, ?)
	`, h.InstrumentKey, h.Date, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert profile: %w", err)
	}
	return nil
}

// LoadProfiles returns up to limit finalized profiles for an instrument,
// oldest first.
func (s *Store) LoadProfiles(ctx context.Context, instrumentKey string, limit int) ([]profile.HistoricalProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM historical_profiles
		WHERE instrument_key = ?
		ORDER BY date DESC
		LIMIT ?
	`, instrumentKey, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query profiles: %w", err)
	}
	defer rows.Close()

	var out []profile.HistoricalProfile
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan profile: %w", err)
		}
		h, err := profile.UnmarshalHistorical([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query returned newest-first; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SaveSnapshots upserts the indicator checkpoints for one timeframe.
func (s *Store) SaveSnapshots(ctx context.Context, instrumentKey string, tf int, snaps []indicator.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO indicator_snapshots (instrument_key, tf, name, data, updated_at)
		VALUES (?, ?, ?, ?, strftime('%s', 'now'))
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, snap := range snaps {
		data, err := snap.Marshal()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal snapshot %s: %w", snap.Type, err)
		}
		if _, err := stmt.Exec(instrumentKey, tf, snap.Type, string(data)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadSnapshots returns the stored indicator checkpoints for one timeframe.
func (s *Store) LoadSnapshots(ctx context.Context, instrumentKey string, tf int) ([]indicator.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM indicator_snapshots
		WHERE instrument_key = ? AND tf = ?
	`, instrumentKey, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite query snapshots: %w", err)
	}
	defer rows.Close()

	var out []indicator.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan snapshot: %w", err)
		}
		snap, err := indicator.UnmarshalSnapshot([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
