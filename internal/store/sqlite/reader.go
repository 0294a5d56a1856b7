package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"tradepulse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to recorded candles for replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles returns an instrument's candles for one timeframe after the
// given unix timestamp, ordered ascending for replay.
func (r *Reader) ReadCandles(instrumentKey string, tf int, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT instrument_key, tf, ts, open, high, low, close, volume, oi, vwap, ticks_count
		FROM candles
		WHERE instrument_key = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, instrumentKey, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&c.InstrumentKey, &c.TF, &tsUnix,
			&c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.OpenInterest, &c.Vwap, &c.TicksCount); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadBars returns an instrument's 1-minute candles for a session date as
// plain bars, used by replay to rebuild historical profiles offline.
func (r *Reader) ReadBars(instrumentKey, date string) ([]model.Bar, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	from := day.Unix()
	to := day.Add(24 * time.Hour).Unix()

	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume, oi
		FROM candles
		WHERE instrument_key = ? AND tf = 60 AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, instrumentKey, from, to)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OpenInterest); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		b.TS = tsUnix
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Instruments lists the distinct instrument keys present in the store.
func (r *Reader) Instruments() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT instrument_key FROM candles ORDER BY instrument_key`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query instruments: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
