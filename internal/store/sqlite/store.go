// Package sqlite is the durable store: per-second observations (batched,
// single-writer), the position ledger, and the hijack event journal.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"hijackwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/hijackwatch.db"
}

// Store is a single-goroutine SQLite writer with transaction batching for
// observations, plus synchronous access to positions and events.
type Store struct {
	db *sql.DB

	// OnBatchCommit is called after each observation batch commit. Metrics hook.
	OnBatchCommit func(n int, elapsed time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and initializes the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
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
		CREATE TABLE IF NOT EXISTS observations (
			ticker TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			value  REAL    NOT NULL,
			volume REAL    NOT NULL,
			PRIMARY KEY (ticker, ts)
		);

		CREATE TABLE IF NOT EXISTS positions (
			id             TEXT PRIMARY KEY,
			ticker         TEXT    NOT NULL,
			entry_price    REAL    NOT NULL,
			quantity       REAL    NOT NULL,
			status         TEXT    NOT NULL,
			exit_price     REAL    NOT NULL DEFAULT 0,
			profit         REAL    NOT NULL DEFAULT 0,
			force_at_entry REAL    NOT NULL DEFAULT 0,
			opened_at      INTEGER NOT NULL,
			closed_at      INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_positions_ticker_status ON positions (ticker, status);
		CREATE INDEX IF NOT EXISTS idx_positions_opened_at ON positions (opened_at);

		CREATE TABLE IF NOT EXISTS hijack_events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker          TEXT    NOT NULL,
			price           REAL    NOT NULL,
			force           REAL    NOT NULL,
			narrative_score REAL    NOT NULL DEFAULT 0,
			event_type      TEXT    NOT NULL,
			recorded_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_ticker ON hijack_events (ticker, recorded_at);
	`)
	return err
}

// Run reads observations from obsCh and inserts them in batched transactions.
// Flushes every batchSize observations OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or obsCh is closed.
func (s *Store) Run(ctx context.Context, obsCh <-chan model.Observation) {
	batch := make([]model.Observation, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if s.OnBatchCommit != nil {
			s.OnBatchCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case obs, ok := <-obsCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, obs)
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

// insertBatch inserts a batch of observations in a single transaction.
func (s *Store) insertBatch(obs []model.Observation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO observations (ticker, ts, value, volume)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(o.Ticker, o.TS.Unix(), o.Value, o.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastObservationTS returns the last stored observation timestamp for a
// ticker. Returns 0 if none exist.
func (s *Store) LastObservationTS(ticker string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(ts) FROM observations WHERE ticker = ?`, ticker,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// InsertPosition persists a new position row.
func (s *Store) InsertPosition(ctx context.Context, p model.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (id, ticker, entry_price, quantity, status, force_at_entry, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Ticker, p.EntryPrice, p.Quantity, string(p.Status), p.ForceAtEntry, p.OpenedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert position: %w", err)
	}
	return nil
}

// ClosePosition transitions a position to CLOSED. The update is guarded on
// the row still being OPEN so a double close is rejected, not re-applied.
func (s *Store) ClosePosition(ctx context.Context, id string, exitPrice, profit float64, closedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, exit_price = ?, profit = ?, closed_at = ?
		WHERE id = ? AND status = ?
	`, string(model.PositionClosed), exitPrice, profit, closedAt.Unix(), id, string(model.PositionOpen))
	if err != nil {
		return fmt.Errorf("sqlite close position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite close position: %w", err)
	}
	if n == 0 {
		return model.ErrNotOpen
	}
	return nil
}

// OpenPositions returns all currently OPEN positions.
func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, selectPositions+` WHERE status = ? ORDER BY opened_at ASC`,
		string(model.PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("sqlite query open positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// OpenPosition returns the OPEN position for a ticker, or nil.
func (s *Store) OpenPosition(ctx context.Context, ticker string) (*model.Position, error) {
	rows, err := s.db.QueryContext(ctx, selectPositions+` WHERE ticker = ? AND status = ? LIMIT 1`,
		ticker, string(model.PositionOpen))
	if err != nil {
		return nil, fmt.Errorf("sqlite query open position: %w", err)
	}
	defer rows.Close()
	positions, err := scanPositions(rows)
	if err != nil || len(positions) == 0 {
		return nil, err
	}
	return &positions[0], nil
}

// OpenCount returns the number of OPEN positions.
func (s *Store) OpenCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE status = ?`, string(model.PositionOpen),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite open count: %w", err)
	}
	return n, nil
}

// AllPositions returns positions newest first. limit <= 0 means no limit.
func (s *Store) AllPositions(ctx context.Context, limit int) ([]model.Position, error) {
	q := selectPositions + ` ORDER BY opened_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

const selectPositions = `
	SELECT id, ticker, entry_price, quantity, status, exit_price, profit, force_at_entry, opened_at, closed_at
	FROM positions`

func scanPositions(rows *sql.Rows) ([]model.Position, error) {
	var out []model.Position
	for rows.Next() {
		var p model.Position
		var status string
		var openedAt, closedAt int64
		if err := rows.Scan(&p.ID, &p.Ticker, &p.EntryPrice, &p.Quantity, &status,
			&p.ExitPrice, &p.Profit, &p.ForceAtEntry, &openedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan position: %w", err)
		}
		p.Status = model.PositionStatus(status)
		p.OpenedAt = time.Unix(openedAt, 0).UTC()
		if closedAt > 0 {
			p.ClosedAt = time.Unix(closedAt, 0).UTC()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WriteEvent appends one row to the hijack event journal.
func (s *Store) WriteEvent(ctx context.Context, ev model.HijackEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hijack_events (ticker, price, force, narrative_score, event_type, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.Ticker, ev.Price, ev.Force, ev.NarrativeScore, string(ev.Type), ev.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest journal entries, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]model.HijackEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, price, force, narrative_score, event_type, recorded_at
		FROM hijack_events
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query events: %w", err)
	}
	defer rows.Close()

	var out []model.HijackEvent
	for rows.Next() {
		var ev model.HijackEvent
		var typ string
		var recordedAt int64
		if err := rows.Scan(&ev.Ticker, &ev.Price, &ev.Force, &ev.NarrativeScore, &typ, &recordedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan event: %w", err)
		}
		ev.Type = model.EventType(typ)
		ev.RecordedAt = time.Unix(recordedAt, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
