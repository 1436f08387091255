// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// Storage defines the interface for policy persistence
type Storage interface {
	// SavePath inserts or updates a path policy entry
	SavePath(key string, a Action) error

	// DeletePath removes a path policy entry
	DeletePath(key string) error

	// SavePort inserts or updates a port policy entry
	SavePort(port uint16, a Action) error

	// DeletePort removes a port policy entry
	DeletePort(port uint16) error

	// LoadPaths loads all persisted path policy entries
	LoadPaths() ([]PathEntry, error)

	// LoadPorts loads all persisted port policy entries
	LoadPorts() ([]PortEntry, error)

	// Close closes the storage connection
	Close() error
}

// SQLiteStorage implements Storage using SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Infof("Policy storage initialized: %s", dbPath)
	return storage, nil
}

// initSchema creates the policy tables if they don't exist
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS path_policies (
		path_key TEXT PRIMARY KEY,
		action INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS port_policies (
		port INTEGER PRIMARY KEY,
		action INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_path_action ON path_policies(action);
	CREATE INDEX IF NOT EXISTS idx_port_action ON port_policies(action);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SavePath saves a path policy to the database
func (s *SQLiteStorage) SavePath(key string, a Action) error {
	query := `
	INSERT INTO path_policies (path_key, action)
	VALUES (?, ?)
	ON CONFLICT(path_key) DO UPDATE SET
		action = excluded.action,
		updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.Exec(query, key, uint8(a)); err != nil {
		return fmt.Errorf("failed to save path policy: %w", err)
	}

	log.Debugf("Path policy saved to storage: key=%q action=%s", key, a)
	return nil
}

// DeletePath removes a path policy from the database
func (s *SQLiteStorage) DeletePath(key string) error {
	result, err := s.db.Exec(`DELETE FROM path_policies WHERE path_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete path policy: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: path %q", ErrNotFound, key)
	}

	log.Debugf("Path policy deleted from storage: key=%q", key)
	return nil
}

// SavePort saves a port policy to the database
func (s *SQLiteStorage) SavePort(port uint16, a Action) error {
	query := `
	INSERT INTO port_policies (port, action)
	VALUES (?, ?)
	ON CONFLICT(port) DO UPDATE SET
		action = excluded.action,
		updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.Exec(query, port, uint8(a)); err != nil {
		return fmt.Errorf("failed to save port policy: %w", err)
	}

	log.Debugf("Port policy saved to storage: port=%d action=%s", port, a)
	return nil
}

// DeletePort removes a port policy from the database
func (s *SQLiteStorage) DeletePort(port uint16) error {
	result, err := s.db.Exec(`DELETE FROM port_policies WHERE port = ?`, port)
	if err != nil {
		return fmt.Errorf("failed to delete port policy: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: port %d", ErrNotFound, port)
	}

	log.Debugf("Port policy deleted from storage: port=%d", port)
	return nil
}

// LoadPaths loads all path policies from the database
func (s *SQLiteStorage) LoadPaths() ([]PathEntry, error) {
	rows, err := s.db.Query(`SELECT path_key, action FROM path_policies ORDER BY path_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query path policies: %w", err)
	}
	defer rows.Close()

	var entries []PathEntry
	for rows.Next() {
		var e PathEntry
		var action uint8
		if err := rows.Scan(&e.Key, &action); err != nil {
			return nil, fmt.Errorf("failed to scan path policy: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating path policies: %w", err)
	}

	log.Infof("Loaded %d path policies from storage", len(entries))
	return entries, nil
}

// LoadPorts loads all port policies from the database
func (s *SQLiteStorage) LoadPorts() ([]PortEntry, error) {
	rows, err := s.db.Query(`SELECT port, action FROM port_policies ORDER BY port ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query port policies: %w", err)
	}
	defer rows.Close()

	var entries []PortEntry
	for rows.Next() {
		var e PortEntry
		var action uint8
		if err := rows.Scan(&e.Port, &action); err != nil {
			return nil, fmt.Errorf("failed to scan port policy: %w", err)
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating port policies: %w", err)
	}

	log.Infof("Loaded %d port policies from storage", len(entries))
	return entries, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetPolicyCount returns the number of persisted path and port policies
func (s *SQLiteStorage) GetPolicyCount() (int, error) {
	query := `SELECT (SELECT COUNT(*) FROM path_policies) + (SELECT COUNT(*) FROM port_policies)`

	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get policy count: %w", err)
	}

	return count, nil
}

// ClearAll removes all policies from storage (useful for testing)
func (s *SQLiteStorage) ClearAll() error {
	if _, err := s.db.Exec(`DELETE FROM path_policies; DELETE FROM port_policies;`); err != nil {
		return fmt.Errorf("failed to clear policies: %w", err)
	}

	log.Info("All policies cleared from storage")
	return nil
}
