package database

import (
	"context"
	"fmt"
)

var tables = []string{
	`CREATE TABLE IF NOT EXISTS session_records (
		session_id TEXT NOT NULL,
		record_key TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (session_id, record_key)
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_session_records_updated_at ON session_records(updated_at)`,
}

// TableCreator builds the schema the session storage needs.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema creates every table and index that does not exist yet.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}
