// internal/state/postgres.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/user/haven/internal/types"
)

// Postgres holds a shared connection for the Postgres-backed stores, for
// deployments where the file stores don't suffice. Session archives and
// crisis events are stored as JSON documents keyed for the queries the
// core needs; crisis rows are insert-only.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the given DSN and runs the schema migration.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection. The caller manages the
// connection lifecycle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) migrate() error {
	_, err := p.db.Exec(`
        CREATE TABLE IF NOT EXISTS session_archives (
            id         TEXT PRIMARY KEY,
            user_id    TEXT NOT NULL,
            start_time TIMESTAMPTZ NOT NULL,
            data       JSONB NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_session_archives_user ON session_archives (user_id);

        CREATE TABLE IF NOT EXISTS crisis_events (
            id      TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            at      TIMESTAMPTZ NOT NULL,
            data    JSONB NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_crisis_events_user ON crisis_events (user_id);

        CREATE TABLE IF NOT EXISTS crisis_dispatch (
            event_id TEXT NOT NULL,
            label    TEXT NOT NULL,
            PRIMARY KEY (event_id, label)
        );`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Archive returns the ArchiveStore view.
func (p *Postgres) Archive() *PostgresArchive {
	return &PostgresArchive{db: p.db}
}

// Crises returns the CrisisStore view.
func (p *Postgres) Crises() *PostgresCrisisLog {
	return &PostgresCrisisLog{db: p.db}
}

// PostgresArchive implements ArchiveStore on the shared connection.
type PostgresArchive struct {
	db *sql.DB
}

// SaveSession upserts the session archive.
func (a *PostgresArchive) SaveSession(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO session_archives (id, user_id, start_time, data)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		string(session.ID), string(session.UserID), session.StartTime, data)
	if err != nil {
		return fmt.Errorf("insert session archive: %w", err)
	}
	return nil
}

// ListByUser returns the user's archived sessions ordered by start time.
func (a *PostgresArchive) ListByUser(ctx context.Context, userID types.UserID) ([]*types.Session, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT data FROM session_archives WHERE user_id = $1 ORDER BY start_time ASC`,
		string(userID))
	if err != nil {
		return nil, fmt.Errorf("query session archives: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session archive: %w", err)
		}
		var session types.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, fmt.Errorf("unmarshal session archive: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// DeleteByUser removes the user's session archives. Crisis rows stay.
func (a *PostgresArchive) DeleteByUser(ctx context.Context, userID types.UserID) (int, error) {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM session_archives WHERE user_id = $1`, string(userID))
	if err != nil {
		return 0, fmt.Errorf("delete session archives: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PostgresCrisisLog implements CrisisStore on the shared connection.
type PostgresCrisisLog struct {
	db *sql.DB
}

// Append inserts a crisis event. Rows are never updated or deleted.
func (c *PostgresCrisisLog) Append(ctx context.Context, event *types.CrisisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal crisis event: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO crisis_events (id, user_id, at, data) VALUES ($1, $2, $3, $4)`,
		string(event.ID), string(event.UserID), event.At, data)
	if err != nil {
		return fmt.Errorf("insert crisis event: %w", err)
	}
	return nil
}

// ListByUser returns every crisis event recorded for the user.
func (c *PostgresCrisisLog) ListByUser(ctx context.Context, userID types.UserID) ([]*types.CrisisEvent, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT data FROM crisis_events WHERE user_id = $1 ORDER BY at ASC`,
		string(userID))
	if err != nil {
		return nil, fmt.Errorf("query crisis events: %w", err)
	}
	defer rows.Close()
	return scanCrisisRows(rows)
}

// ListDue returns every follow-up due at or before now that has not been
// marked dispatched.
func (c *PostgresCrisisLog) ListDue(ctx context.Context, now time.Time) ([]types.DueFollowUp, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT data FROM crisis_events ORDER BY at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query crisis events: %w", err)
	}
	defer rows.Close()
	events, err := scanCrisisRows(rows)
	if err != nil {
		return nil, err
	}

	var out []types.DueFollowUp
	for _, event := range events {
		for _, fu := range event.FollowUps {
			if fu.Due.After(now) {
				continue
			}
			dispatched, err := c.isDispatched(ctx, event.ID, fu.Label)
			if err != nil {
				return nil, err
			}
			if !dispatched {
				out = append(out, types.DueFollowUp{Event: event, FollowUp: fu})
			}
		}
	}
	return out, nil
}

func (c *PostgresCrisisLog) isDispatched(ctx context.Context, id types.CrisisEventID, label string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM crisis_dispatch WHERE event_id = $1 AND label = $2`,
		string(id), label).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query crisis dispatch: %w", err)
	}
	return true, nil
}

// MarkDispatched records that the labeled follow-up has been handed off.
func (c *PostgresCrisisLog) MarkDispatched(ctx context.Context, id types.CrisisEventID, label string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO crisis_dispatch (event_id, label) VALUES ($1, $2)
         ON CONFLICT DO NOTHING`,
		string(id), label)
	if err != nil {
		return fmt.Errorf("insert crisis dispatch: %w", err)
	}
	return nil
}

func scanCrisisRows(rows *sql.Rows) ([]*types.CrisisEvent, error) {
	var events []*types.CrisisEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan crisis event: %w", err)
		}
		var event types.CrisisEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("unmarshal crisis event: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
