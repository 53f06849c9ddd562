package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mailvault/mailvault/pkg/models"
)

var (
	// ErrConnect means the document store could not be reached or prepared.
	ErrConnect = errors.New("store unreachable")
	// ErrWrite means an upsert failed, transiently or permanently.
	ErrWrite = errors.New("store write failed")
	// ErrNotFound is returned by Get for an unknown message id.
	ErrNotFound = errors.New("record not found")
)

var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config connection settings for the document store
type Config struct {
	Path       string        // sqlite database file
	Collection string        // table holding the records
	Timeout    time.Duration // per-call deadline
}

// Store owns one open connection to the document store. All methods are
// meant for use by a single goroutine.
type Store struct {
	db      *sqlx.DB
	table   string
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects to the document store, ensures the collection schema and
// verifies reachability with a ping before any writes are attempted.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if !collectionPattern.MatchString(cfg.Collection) {
		return nil, fmt.Errorf("%w: invalid collection name %q", ErrConnect, cfg.Collection)
	}

	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", ErrConnect, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.Path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s := &Store{
		db:      db,
		table:   cfg.Collection,
		timeout: timeout,
		logger:  logger.With("component", "store", "collection", cfg.Collection),
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrConnect, err)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("connected to document store", "path", cfg.Path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schema, s.table)); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrConnect, err)
	}
	return nil
}

// Upsert writes the record keyed by its message id, overwriting any prior
// record with the same key. Storing the same record twice leaves exactly
// one row.
func (s *Store) Upsert(ctx context.Context, rec *models.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (message_id, sender, subject, received_at, body, archived_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			sender = excluded.sender,
			subject = excluded.subject,
			received_at = excluded.received_at,
			body = excluded.body,
			archived_at = excluded.archived_at
	`, s.table)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		rec.MessageID,
		rec.Sender,
		rec.Subject,
		rec.ReceivedAt,
		rec.Body,
		now,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	rec.ArchivedAt = now
	return nil
}

// Get returns the record stored under the given message id.
func (s *Store) Get(ctx context.Context, messageID string) (*models.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rec models.Record
	query := fmt.Sprintf(`SELECT * FROM %s WHERE message_id = ?`, s.table)
	err := s.db.GetContext(ctx, &rec, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &rec, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err := s.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close releases the connection. Safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	return db.Close()
}
