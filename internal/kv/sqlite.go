package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// SQLite persists keys in the kv_store table created by the db migrations.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an open, migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv_store WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, errors.Wrap(err, "kv: query")
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "kv: scan")
		}
		out[key] = json.RawMessage(value)
	}
	return out, errors.Wrap(rows.Err(), "kv: rows")
}

func (s *SQLite) Set(ctx context.Context, values map[string]any) error {
	encoded, err := encode(values)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "kv: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP;
	`)
	if err != nil {
		return errors.Wrap(err, "kv: prepare")
	}
	defer stmt.Close()

	for k, v := range encoded {
		if _, err := stmt.ExecContext(ctx, k, string(v)); err != nil {
			return errors.Wrapf(err, "kv: write %q", k)
		}
	}
	return errors.Wrap(tx.Commit(), "kv: commit")
}

func (s *SQLite) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv_store WHERE key IN ("+placeholders+")", args...)
	return errors.Wrap(err, "kv: delete")
}
