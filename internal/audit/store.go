package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/journal-sentinel/internal/config"
	"go.uber.org/zap"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Sink is the subset of the audit store used by request handlers
type Sink interface {
	Insert(ctx context.Context, event *Event) error
	Recent(ctx context.Context, limit int) ([]*Event, error)
	Summary(ctx context.Context) (*Summary, error)
}

// Store persists masking audit events in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS masking_events (
	id              BIGSERIAL PRIMARY KEY,
	request_id      TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	provider        TEXT NOT NULL DEFAULT '',
	original_length INTEGER NOT NULL,
	masked_length   INTEGER NOT NULL,
	masked_count    INTEGER NOT NULL,
	pii_detected    BOOLEAN NOT NULL,
	findings        JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_masking_events_created_at ON masking_events (created_at DESC);`

// NewStore connects to the audit database, retrying with exponential
// backoff while the database comes up.
func NewStore(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*Store, error) {
	var db *sqlx.DB
	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	notify := func(err error, d time.Duration) {
		logger.Warn("Audit database not ready, retrying", zap.Error(err), zap.Duration("backoff", d))
	}
	if err := backoff.RetryNotify(connect, b, notify); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db, logger: logger}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

// Migrate creates the audit table if needed
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	return nil
}

// Insert adds a new audit event
func (s *Store) Insert(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO masking_events (request_id, source, provider, original_length, masked_length, masked_count, pii_detected, findings)
		VALUES (:request_id, :source, :provider, :original_length, :masked_length, :masked_count, :pii_detected, :findings)
		RETURNING id, created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		s.logger.Error("Failed to insert audit event",
			zap.Error(err),
			zap.String("source", event.Source))
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&event.ID, &event.CreatedAt); err != nil {
			return fmt.Errorf("failed to read audit event id: %w", err)
		}
	}

	s.logger.Debug("Audit event inserted",
		zap.Int64("id", event.ID),
		zap.String("source", event.Source),
		zap.Int("masked_count", event.MaskedCount))

	return rows.Err()
}

// InsertBatch adds many events in one statement
func (s *Store) InsertBatch(ctx context.Context, events []*Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	valueStrings := make([]string, 0, len(events))
	valueArgs := make([]interface{}, 0, len(events)*8)
	for i, e := range events {
		n := i * 8
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))
		valueArgs = append(valueArgs,
			e.RequestID, e.Source, e.Provider,
			e.OriginalLength, e.MaskedLength, e.MaskedCount,
			e.PIIDetected, e.Findings,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO masking_events (request_id, source, provider, original_length, masked_length, masked_count, pii_detected, findings)
		VALUES %s`, strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Batch audit insert failed", zap.Error(err))
		return 0, fmt.Errorf("batch audit insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(events))
	}
	return inserted, nil
}

// Recent returns the newest events first
func (s *Store) Recent(ctx context.Context, limit int) ([]*Event, error) {
	query := `
		SELECT id, request_id, source, provider, original_length, masked_length,
			masked_count, pii_detected, findings, created_at
		FROM masking_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	events := []*Event{}
	if err := s.db.SelectContext(ctx, &events, query, ClampLimit(limit)); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, nil
}

// Summary aggregates the whole audit log
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	query := `
		SELECT
			COUNT(*) AS total_events,
			COUNT(CASE WHEN pii_detected THEN 1 END) AS pii_events,
			COALESCE(SUM(masked_count), 0) AS masked_spans,
			COALESCE(SUM(original_length), 0) AS original_chars,
			COALESCE(SUM(masked_length), 0) AS masked_chars,
			MIN(created_at) AS first_event_at,
			MAX(created_at) AS last_event_at,
			COUNT(DISTINCT source) AS distinct_sources
		FROM masking_events`

	summary := &Summary{}
	if err := s.db.GetContext(ctx, summary, query); err != nil {
		return nil, fmt.Errorf("failed to summarize audit events: %w", err)
	}
	return summary, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ClampLimit bounds a requested page size
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecentLimit
	case limit > maxRecentLimit:
		return maxRecentLimit
	default:
		return limit
	}
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
