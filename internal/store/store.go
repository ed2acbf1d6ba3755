package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/tidemark/mqttbridge/internal/infrastructure/config"
)

// Store configuration constants.
const (
	// dirPermissions is the permission mode for the store directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the store file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying store connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute
)

// schema creates the buffered-message table. A single table, so the schema is
// applied inline at Open rather than through a migration framework.
const schema = `
CREATE TABLE IF NOT EXISTS buffered_messages (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    topic      TEXT NOT NULL,
    payload    BLOB NOT NULL,
    qos        INTEGER NOT NULL,
    retained   INTEGER NOT NULL,
    created_at TEXT NOT NULL
);
`

// Message is one persisted publish awaiting replay.
//
// Seq is the opaque handle callers use to delete a row once the message has
// been handed back to the broker; rows replay in ascending Seq order, which
// is original enqueue order.
type Message struct {
	Seq      int64
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Store wraps a sql.DB connection holding publishes buffered while the
// connection to the broker is down. It survives process restarts so buffered
// messages are not lost with the process.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates a new store with the specified configuration.
//
// It performs the following setup:
//  1. Creates the store directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Configures WAL mode and busy timeout
//  4. Applies the schema
//  5. Verifies the connection with a ping
//
// Parameters:
//   - cfg: Store configuration from config.yaml
//
// Returns:
//   - *Store: Connected store wrapper
//   - error: If connection or configuration fails
func Open(cfg config.StoreConfig) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// Build connection string with pragmas
	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)

	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	// SQLite works best with a single writer, but multiple readers
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	s := &Store{
		db:   sqlDB,
		path: cfg.Path,
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying store connection: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying store schema: %w", err)
	}

	// Set file permissions (owner read/write only)
	// Ignore error - file might not exist yet on first run, will be set after first write
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return s, nil
}

// Append persists one buffered message and returns its sequence number.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - m: Message to persist (Seq is ignored on input)
//
// Returns:
//   - int64: Assigned sequence number, usable with Delete
//   - error: If the insert fails
func (s *Store) Append(ctx context.Context, m Message) (int64, error) {
	retained := 0
	if m.Retained {
		retained = 1
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO buffered_messages (topic, payload, qos, retained, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.Topic, m.Payload, m.QoS, retained, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("appending buffered message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading buffered message seq: %w", err)
	}

	return seq, nil
}

// List returns all persisted messages in original enqueue order.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - []Message: Messages ordered by ascending sequence number
//   - error: If the query fails
func (s *Store) List(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, topic, payload, qos, retained
		 FROM buffered_messages ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing buffered messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var messages []Message
	for rows.Next() {
		var m Message
		var retained int
		if err := rows.Scan(&m.Seq, &m.Topic, &m.Payload, &m.QoS, &retained); err != nil {
			return nil, fmt.Errorf("scanning buffered message: %w", err)
		}
		m.Retained = retained != 0
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buffered messages: %w", err)
	}

	return messages, nil
}

// Delete removes one persisted message by sequence number.
// Deleting a sequence number that does not exist is not an error.
func (s *Store) Delete(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM buffered_messages WHERE seq = ?`, seq,
	); err != nil {
		return fmt.Errorf("deleting buffered message %d: %w", seq, err)
	}
	return nil
}

// Clear removes all persisted messages.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM buffered_messages`); err != nil {
		return fmt.Errorf("clearing buffered messages: %w", err)
	}
	return nil
}

// Count returns the number of persisted messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM buffered_messages`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting buffered messages: %w", err)
	}
	return count, nil
}

// Path returns the filesystem path to the store file.
func (s *Store) Path() string {
	return s.path
}

// HealthCheck verifies the store is accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Store) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// Close closes the store connection gracefully.
// It should be called when the application shuts down.
//
// Returns:
//   - error: If closing fails
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
