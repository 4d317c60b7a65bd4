/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed heartbeat-db.sql
var schemaSQL string

// SQLiteFlagStore implements FlagStore using SQLite
type SQLiteFlagStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// flagRow is a row of the flags table
type flagRow struct {
	Name  string `db:"name"`
	Value int    `db:"value"`
}

// NewSQLiteFlagStore opens (or creates) the database at dbPath
func NewSQLiteFlagStore(dbPath string, logger *zap.Logger) (*SQLiteFlagStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection avoids "database is locked" under concurrent writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteFlagStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite flag store initialized",
		zap.String("database_path", dbPath),
		zap.String("journal_mode", "WAL"))

	return store, nil
}

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteFlagStore) initSchema() error {
	var version int
	if err := s.db.Get(&version, "PRAGMA user_version"); err != nil {
		return wrapSQLiteError(fmt.Errorf("failed to query schema version: %w", err))
	}

	if version == 0 {
		s.logger.Info("Initializing database schema (version 1)")
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return wrapSQLiteError(fmt.Errorf("failed to create schema: %w", err))
		}
		return nil
	}

	s.logger.Debug("Database schema already exists", zap.Int("version", version))
	return nil
}

// SetFlag writes a flag value
func (s *SQLiteFlagStore) SetFlag(ctx context.Context, name string, value bool) error {
	if name == "" {
		return ErrInvalidFlagName
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO flags (name, value, updated_at) VALUES (:name, :value, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		flagRow{Name: name, Value: boolToInt(value)})
	if err != nil {
		return wrapSQLiteError(fmt.Errorf("failed to set flag %q: %w", name, err))
	}

	s.logger.Debug("Flag stored", zap.String("name", name), zap.Bool("value", value))
	return nil
}

// Flag reads a flag value; missing rows read as false
func (s *SQLiteFlagStore) Flag(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrInvalidFlagName
	}

	var row flagRow
	err := s.db.GetContext(ctx, &row, "SELECT name, value FROM flags WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapSQLiteError(fmt.Errorf("failed to read flag %q: %w", name, err))
	}
	return row.Value != 0, nil
}

// ConsumeFlag reads a flag and deletes it inside one transaction
func (s *SQLiteFlagStore) ConsumeFlag(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrInvalidFlagName
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, wrapSQLiteError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var row flagRow
	err = tx.GetContext(ctx, &row, "SELECT name, value FROM flags WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapSQLiteError(fmt.Errorf("failed to read flag %q: %w", name, err))
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM flags WHERE name = ?", name); err != nil {
		return false, wrapSQLiteError(fmt.Errorf("failed to clear flag %q: %w", name, err))
	}
	if err := tx.Commit(); err != nil {
		return false, wrapSQLiteError(fmt.Errorf("failed to commit flag %q: %w", name, err))
	}

	return row.Value != 0, nil
}

// Close closes the database connection
func (s *SQLiteFlagStore) Close() error {
	s.logger.Info("Closing SQLite flag store")
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// wrapSQLiteError maps driver lock errors onto ErrDatabaseLocked
func wrapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %v", ErrDatabaseLocked, err)
	}
	if strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
