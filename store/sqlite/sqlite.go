/*
Package sqlite persists saved engine connections in SQLite.

PURPOSE:
  The planning engines own no durable state. The only thing the server keeps
  across restarts is the list of saved connections: a named credential for an
  engine that a user can reconnect with in one call.

KEY TABLES:
  saved_connections: one row per saved credential

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to a
  single connection so every query sees the same data.

USAGE:
  store, err := sqlite.New("./planning.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  saved, err := store.SaveConnection(ctx, sqlite.SavedConnection{
      Name: "prod", EngineID: "anaplan", Token: token,
  })

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - api/handlers.go: saved connection endpoints
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/planning-engine/planning"
)

// Store persists saved connections.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	builder sq.StatementBuilderType
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saved_connections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		engine_id TEXT NOT NULL,
		email TEXT,
		token TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_saved_connections_engine
		ON saved_connections(engine_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SAVED CONNECTIONS
// =============================================================================

// SavedConnection is a named credential for one engine.
type SavedConnection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	EngineID  string    `json:"engineId"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credentials returns the connect credentials of the saved connection.
func (c SavedConnection) Credentials() planning.Credentials {
	return planning.Credentials{Email: c.Email, Token: c.Token}
}

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var connectionColumns = []string{"id", "name", "engine_id", "email", "token", "created_at"}

// SaveConnection stores a new connection with a fresh id and creation time.
func (s *Store) SaveConnection(ctx context.Context, c SavedConnection) (SavedConnection, error) {
	const op = "save connection"
	if strings.TrimSpace(c.Name) == "" {
		return SavedConnection{}, planning.Invalid(op, "name is required")
	}
	if c.EngineID == "" {
		return SavedConnection{}, planning.Invalid(op, "engineId is required")
	}
	if c.Token == "" {
		return SavedConnection{}, planning.Invalid(op, "token is required")
	}

	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()

	query, args, err := s.builder.Insert("saved_connections").
		Columns(connectionColumns...).
		Values(c.ID, c.Name, c.EngineID, nullString(c.Email), c.Token, c.CreatedAt.Format(timeLayout)).
		ToSql()
	if err != nil {
		return SavedConnection{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return SavedConnection{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// ListConnections returns all saved connections, newest first.
func (s *Store) ListConnections(ctx context.Context) ([]SavedConnection, error) {
	query, args, err := s.builder.Select(connectionColumns...).
		From("saved_connections").
		OrderBy("created_at DESC", "rowid DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := []SavedConnection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// GetConnection retrieves a saved connection by ID.
func (s *Store) GetConnection(ctx context.Context, id string) (SavedConnection, error) {
	query, args, err := s.builder.Select(connectionColumns...).
		From("saved_connections").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return SavedConnection{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanConnection(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return SavedConnection{}, planning.UnknownEntity("get connection", "connection", id)
	}
	return c, err
}

// DeleteConnection removes a saved connection.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	query, args, err := s.builder.Delete("saved_connections").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planning.UnknownEntity("delete connection", "connection", id)
	}
	return nil
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (SavedConnection, error) {
	var c SavedConnection
	var email sql.NullString
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.EngineID, &email, &c.Token, &createdAt); err != nil {
		return SavedConnection{}, err
	}
	c.Email = email.String
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
