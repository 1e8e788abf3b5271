package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
)

// SQLStorage persists session records in a sqlite or libsql database.
type SQLStorage struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLStorage creates the backing schema if needed.
func NewSQLStorage(ctx context.Context, db *database.DB, logger *logging.ChanneledLogger) (*SQLStorage, error) {
	if err := database.NewTableCreator().CreateSchema(ctx, db); err != nil {
		logger.Storage().Error("Failed to create session schema", "error", err.Error())
		return nil, err
	}
	return &SQLStorage{db: db, logger: logger}, nil
}

// Load retrieves the persisted record of a console session.
func (s *SQLStorage) Load(ctx context.Context, sessionID string) (*session.Record, error) {
	const query = `SELECT payload FROM session_records WHERE session_id = ? AND record_key = ?`

	start := time.Now()
	var payload string
	err := s.db.QueryRowContext(ctx, query, sessionID, session.RecordKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Storage().Debug("Session record not found", "sessionId", logging.MaskID(sessionID))
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		s.logger.Storage().Error("Failed to load session record", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}
	s.checkSlow("load", start)

	record, err := decodeRecord([]byte(payload))
	if err != nil {
		s.logger.Storage().Warn("Session record corrupted", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return nil, err
	}
	return record, nil
}

// Save replaces the persisted record of a console session.
func (s *SQLStorage) Save(ctx context.Context, sessionID string, record session.Record) error {
	const query = `
		INSERT INTO session_records (session_id, record_key, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, record_key)
		DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`

	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, query, sessionID, session.RecordKey, string(payload), time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Storage().Error("Failed to save session record", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return fmt.Errorf("failed to save session record: %w", err)
	}
	s.checkSlow("save", start)
	s.logger.Storage().Debug("Session record saved", "sessionId", logging.MaskID(sessionID), "authenticated", record.Authenticated)
	return nil
}

// Clear removes the persisted record of a console session.
func (s *SQLStorage) Clear(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM session_records WHERE session_id = ? AND record_key = ?`

	if _, err := s.db.ExecContext(ctx, query, sessionID, session.RecordKey); err != nil {
		s.logger.Storage().Error("Failed to clear session record", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	s.logger.Storage().Debug("Session record cleared", "sessionId", logging.MaskID(sessionID))
	return nil
}

// PurgeOlderThan deletes records not written since cutoff.
func (s *SQLStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM session_records WHERE updated_at < ?`

	res, err := s.db.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to purge session records: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Storage().Info("Purged stale session records", "count", n)
	}
	return n, nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) checkSlow(op string, start time.Time) {
	if d := time.Since(start); d > config.SlowQueryThreshold {
		s.logger.Storage().Warn("Slow session record query", "operation", op, "duration", d)
	}
}
