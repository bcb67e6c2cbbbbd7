package expando

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested expando doesn't exist.
var ErrNotFound = errors.New("expando not found")

// Store persists expandos in SQLite, keyed by UUID.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenStore opens or creates the database at path. ":memory:" keeps
// everything in process.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS expandos (
		id TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert stores e under a new random id.
func (s *Store) Insert(e *Expando) (uuid.UUID, error) {
	id := uuid.New()
	if err := s.Save(id, e); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Save stores e under id, replacing any previous value. An expando that
// cannot be serialized leaves the database untouched.
func (s *Store) Save(id uuid.UUID, e *Expando) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec("INSERT OR REPLACE INTO expandos (id, data) VALUES (?, ?)", id.String(), data)
	if err != nil {
		return fmt.Errorf("saving expando: %w", err)
	}
	return nil
}

// Load retrieves the expando stored under id.
func (s *Store) Load(id uuid.UUID) (*Expando, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM expandos WHERE id = ?", id.String()).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying expando: %w", err)
	}
	return UnmarshalExpando(data)
}

// Delete removes id. Deleting a missing id is not an error.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM expandos WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("deleting expando: %w", err)
	}
	return nil
}

// IDs lists the stored ids in sorted order.
func (s *Store) IDs() ([]uuid.UUID, error) {
	rows, err := s.db.Query("SELECT id FROM expandos ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing expandos: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("listing expandos: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("listing expandos: bad id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
