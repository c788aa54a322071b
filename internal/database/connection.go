package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// DefaultSQLitePath is used when no DSN is configured for sqlite
var DefaultSQLitePath = filepath.Join("data", "engclass.db")

// Config selects and locates the database
type Config struct {
	Type string
	DSN  string
}

// Connect opens the database and makes sure the schema exists
func Connect(cfg Config) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Type {
	case TypeSQLite, "":
		db, err = connectSQLite(cfg.DSN)
	case TypePostgres:
		db, err = sqlx.Connect("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func connectSQLite(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite doesn't support multiple writers; one connection also keeps :memory: shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// InitSchema creates the tables if they don't exist
func InitSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS words (
			id TEXT PRIMARY KEY,
			form TEXT NOT NULL,
			meaning TEXT NOT NULL,
			contexts TEXT NOT NULL DEFAULT '[]',
			sound TEXT,
			visual TEXT,
			logic TEXT,
			distractors TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create words table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS word_mastery (
			student_id TEXT NOT NULL,
			word_id TEXT NOT NULL,
			status TEXT NOT NULL,
			review_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			error_patterns TEXT NOT NULL DEFAULT '[]',
			recent_outcomes TEXT NOT NULL DEFAULT '[]',
			first_accepted_at TIMESTAMP NULL,
			last_reviewed_at TIMESTAMP NULL,
			next_due_at TIMESTAMP NULL,
			retrain_queued BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (student_id, word_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create word_mastery table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_word_mastery_status ON word_mastery (student_id, status)`)
	if err != nil {
		return fmt.Errorf("failed to create word_mastery index: %w", err)
	}
	return nil
}
