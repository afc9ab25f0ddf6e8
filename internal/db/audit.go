package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neboloop/browserd/internal/cdp"
)

// Store persists protocol command audit records. It satisfies cdp.Recorder;
// writes happen on the session's dispatch path, so Record never propagates
// failures back into command handling.
type Store struct {
	db   *sql.DB
	log  *slog.Logger
	cron *cron.Cron
}

func newStore(conn *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: conn, log: logger.With("component", "audit-store")}
}

// CommandRow is one persisted audit record.
type CommandRow struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	SessionID  string    `json:"session_id"`
	Method     string    `json:"method"`
	TargetID   string    `json:"target_id,omitempty"`
	Sensitive  bool      `json:"sensitive"`
	DurationMS int64     `json:"duration_ms"`
	ErrorCode  int       `json:"error_code"`
}

// Record inserts one command record. Errors are logged and swallowed.
func (s *Store) Record(rec cdp.CommandRecord) {
	_, err := s.db.Exec(
		`INSERT INTO audit_commands (recorded_at, session_id, method, target_id, sensitive, duration_ms, error_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UTC(), rec.Session, rec.Method, rec.TargetID, rec.Sensitive, rec.Duration.Milliseconds(), rec.ErrorCode,
	)
	if err != nil {
		s.log.Warn("audit insert failed", "method", rec.Method, "error", err)
	}
}

// Recent returns the newest records, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]CommandRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, session_id, method, target_id, sensitive, duration_ms, error_code
		 FROM audit_commands ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []CommandRow
	for rows.Next() {
		var r CommandRow
		if err := rows.Scan(&r.ID, &r.RecordedAt, &r.SessionID, &r.Method, &r.TargetID, &r.Sensitive, &r.DurationMS, &r.ErrorCode); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountSince reports how many commands were recorded at or after the cutoff.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_commands WHERE recorded_at >= ?`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

// Prune deletes records older than the retention window and returns how
// many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_commands WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}

// SchedulePruning starts a cron job that prunes on the given schedule
// ("@daily", "0 3 * * *", ...). Call Close to stop it.
func (s *Store) SchedulePruning(schedule string, retention time.Duration) error {
	if s.cron != nil {
		return fmt.Errorf("pruning already scheduled")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		deleted, err := s.Prune(context.Background(), retention)
		if err != nil {
			s.log.Error("scheduled prune failed", "error", err)
			return
		}
		if deleted > 0 {
			s.log.Info("pruned audit records", "deleted", deleted)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule pruning: %w", err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Close stops the prune schedule and closes the database.
func (s *Store) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.db.Close()
}
