package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/scoring"
)

// Supported SQL drivers, as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQL is a Store backed by database/sql. Rows carry the indexed columns and
// the full record as a JSON payload.
type SQL struct {
	db     *sql.DB
	driver string
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(path string) (*SQL, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite pragma: %w", err)
	}
	return newSQL(db, DriverSQLite)
}

// OpenPostgres connects to Postgres using dsn.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("store: postgres dsn is required")
	}
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return newSQL(db, DriverPostgres)
}

func newSQL(db *sql.DB, driver string) (*SQL, error) {
	s := &SQL{db: db, driver: driver}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

func (s *SQL) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_name TEXT NOT NULL,
			ts_unix_ms BIGINT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts_unix_ms);`,
		`CREATE TABLE IF NOT EXISTS quiz_results (
			result_id TEXT PRIMARY KEY,
			participant_name TEXT NOT NULL,
			calculated_at_unix_ms BIGINT NOT NULL,
			payload TEXT NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *SQL) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AppendEvents inserts events in one transaction.
func (s *SQL) AppendEvents(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO events (event_name, ts_unix_ms, session_id, payload) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("store: append events: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("store: encode event: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ev.EventName, ev.Timestamp.UnixMilli(),
			ev.CustomData.SessionID, string(payload)); err != nil {
			return fmt.Errorf("store: append events: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append events: commit: %w", err)
	}
	return nil
}

// ListEvents returns events stamped at or after since, oldest first.
func (s *SQL) ListEvents(ctx context.Context, since time.Time) ([]types.Event, error) {
	var from int64
	if !since.IsZero() {
		from = since.UnixMilli()
	} else {
		from = -1 << 62
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT payload FROM events WHERE ts_unix_ms >= ? ORDER BY ts_unix_ms ASC`), from)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: list events: %w", err)
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("store: decode event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return out, nil
}

// DeleteEventsBefore removes events stamped before cutoff and returns how
// many rows were deleted.
func (s *SQL) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM events WHERE ts_unix_ms < ?`), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: delete events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveResult upserts r keyed by its id.
func (s *SQL) SaveResult(ctx context.Context, r scoring.QuizResult) error {
	if r.ID == "" {
		return errors.New("store: save result: id is required")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO quiz_results (result_id, participant_name, calculated_at_unix_ms, payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (result_id) DO UPDATE SET
			participant_name = excluded.participant_name,
			calculated_at_unix_ms = excluded.calculated_at_unix_ms,
			payload = excluded.payload`),
		r.ID, r.ParticipantName, r.CalculatedAt.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("store: save result: %w", err)
	}
	return nil
}

// GetResult loads the result stored under id, or ErrNotFound.
func (s *SQL) GetResult(ctx context.Context, id string) (scoring.QuizResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT payload FROM quiz_results WHERE result_id = ?`), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return scoring.QuizResult{}, ErrNotFound
	}
	if err != nil {
		return scoring.QuizResult{}, fmt.Errorf("store: get result: %w", err)
	}
	var r scoring.QuizResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return scoring.QuizResult{}, fmt.Errorf("store: decode result: %w", err)
	}
	return r, nil
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}
