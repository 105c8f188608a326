package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"hijackwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to archived observations for replay.
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

// ReadObservations returns observations after a timestamp, ordered by
// timestamp ascending for correct replay order. An empty ticker means all
// tickers. limit <= 0 means no limit.
func (r *Reader) ReadObservations(ticker string, after time.Time, limit int) ([]model.Observation, error) {
	q := `
		SELECT ticker, ts, value, volume
		FROM observations
		WHERE ts > ?`
	args := []any{after.Unix()}
	if ticker != "" {
		q += ` AND ticker = ?`
		args = append(args, ticker)
	}
	q += ` ORDER BY ts ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query observations: %w", err)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var tsUnix int64
		if err := rows.Scan(&o.Ticker, &tsUnix, &o.Value, &o.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan observation: %w", err)
		}
		o.TS = time.Unix(tsUnix, 0).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
