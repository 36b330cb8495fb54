package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// SQLiteStore implements RecordStore on a single versioned key/value table.
type SQLiteStore struct {
	db *sql.DB
}

func initDB(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// One connection serialises writers, so the version check below is never
	// interleaved with another statement from this process.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_updated ON records(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) ReadRecord(ctx context.Context, key string) (Record, error) {
	rec := Record{Key: key}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data, version, updated_at FROM records WHERE key = ?
	`, key).Scan(&data, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Data = []byte(data)
	return rec, nil
}

func (s *SQLiteStore) WriteRecord(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if expectedVersion == 0 {
		result, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO records (key, data, version, updated_at)
			VALUES (?, ?, 1, ?)
		`, key, string(data), time.Now().UTC())
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE records
			SET data = ?, version = version + 1, updated_at = ?
			WHERE key = ? AND version = ?
		`, string(data), time.Now().UTC(), key, expectedVersion)
	}
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, prefix string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, data, version, updated_at
		FROM records
		WHERE substr(key, 1, ?) = ?
		ORDER BY key ASC
	`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var data string
		if err := rows.Scan(&rec.Key, &data, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Data = []byte(data)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// seedData writes the reward catalog and the admin account if they are missing.
func seedData(ctx context.Context, catalog *Catalog, admins *AdminStore, rewards []RewardDefinition, adminEmail, adminPassword string, logger *slog.Logger) error {
	seeded, err := catalog.Seed(ctx, rewards)
	if err != nil {
		return fmt.Errorf("failed to seed reward catalog: %w", err)
	}
	if seeded {
		logger.Info("reward catalog seeded", "rewards", len(rewards))
	}

	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	created, err := admins.Create(ctx, adminEmail, string(hashedPassword))
	if err != nil {
		return fmt.Errorf("failed to seed admin %s: %w", adminEmail, err)
	}
	if created {
		logger.Info("admin account created", "email", adminEmail)
	}
	return nil
}
