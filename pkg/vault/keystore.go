package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// KeyStore holds secrets addressed by (service, account).
type KeyStore interface {
	// Get returns the secret and whether it exists.
	Get(service, account string) (string, bool, error)
	Set(service, account, secret string) error
}

// ---------------------------------------------------------------------------
// In-memory key store
// ---------------------------------------------------------------------------

// MemoryKeyStore keeps secrets in a map keyed by "service:account". Nothing
// is written to disk: secrets are lost when the process exits, and two
// instances never see each other's secrets.
type MemoryKeyStore struct {
	mu      sync.Mutex
	secrets map[string]string
}

// NewMemoryKeyStore creates an empty store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{secrets: make(map[string]string)}
}

func memoryKey(service, account string) string { return service + ":" + account }

func (m *MemoryKeyStore) Get(service, account string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[memoryKey(service, account)]
	return s, ok, nil
}

func (m *MemoryKeyStore) Set(service, account, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[memoryKey(service, account)] = secret
	return nil
}

// ---------------------------------------------------------------------------
// SQLite key store
// ---------------------------------------------------------------------------

// SQLiteKeyStore persists secrets in a SQLite database readable only by the
// current user.
type SQLiteKeyStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenSQLiteKeyStore creates or opens the database at dbPath.
func OpenSQLiteKeyStore(dbPath string) (*SQLiteKeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteKeyStore{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := os.Chmod(dbPath, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restrict database permissions: %w", err)
	}
	return store, nil
}

func (s *SQLiteKeyStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS secrets (
		service TEXT NOT NULL,
		account TEXT NOT NULL,
		secret TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (service, account)
	);`)
	return err
}

// Path returns the database file path.
func (s *SQLiteKeyStore) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *SQLiteKeyStore) Close() error { return s.db.Close() }

func (s *SQLiteKeyStore) Get(service, account string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var secret string
	err := s.db.QueryRow(
		`SELECT secret FROM secrets WHERE service = ? AND account = ?`,
		service, account,
	).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query secret: %w", err)
	}
	return secret, true, nil
}

func (s *SQLiteKeyStore) Set(service, account, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO secrets (service, account, secret, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(service, account) DO UPDATE SET secret = excluded.secret, updated_at = excluded.updated_at`,
		service, account, secret, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

var (
	_ KeyStore = (*MemoryKeyStore)(nil)
	_ KeyStore = (*SQLiteKeyStore)(nil)
)
