package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"
)

// Keys persisted in the secure store. These mirror what the backend and
// linking flows expect; userId doubles as the bearer credential on every
// authenticated call.
const (
	KeyUserID            = "userId"
	KeyDeviceID          = "deviceId"
	KeyHasSeenOnboarding = "hasSeenOnboarding"
	KeyLinkedEmail       = "linkedEmail"
	KeyTrialInfo         = "trialInfo"
	KeyTrialReminder     = "trialReminder"
)

const schema = `
CREATE TABLE IF NOT EXISTS secure_items (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the device-scoped secure key/value store: an embedded sqlite file
// whose values are sealed with a per-device key held next to it. The sealing
// key never leaves the data directory.
type Store struct {
	db   *sql.DB
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// Open prepares the store under dataDir, creating the directory, the sqlite
// file and the device key on first use.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	key, err := loadOrCreateKey(filepath.Join(dataDir, "device.key"))
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	// modernc's driver takes pragmas in _pragma=name(value) form.
	dsn := filepath.Join(dataDir, "secure_store.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open secure store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply secure store schema: %w", err)
	}

	return &Store{db: db, aead: aead}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored value for key, reporting whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM secure_items WHERE key = ?`
	var sealed []byte
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	plain, err := s.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("unseal %s: %w", key, err)
	}
	return string(plain), true, nil
}

// Set stores value under key, overwriting any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO secure_items (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`
	sealed, err := s.seal([]byte(value))
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, query, key, sealed); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secure_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// EnsureUserID returns the persisted user identifier, generating and storing
// one first if this install has none. The identifier is never rotated.
func (s *Store) EnsureUserID(ctx context.Context) (string, error) {
	return s.ensure(ctx, KeyUserID)
}

// EnsureDeviceID is the same bootstrap for the device identifier used by the
// email-linking endpoints.
func (s *Store) EnsureDeviceID(ctx context.Context) (string, error) {
	return s.ensure(ctx, KeyDeviceID)
}

func (s *Store) ensure(ctx context.Context, key string) (string, error) {
	if id, ok, err := s.Get(ctx, key); err != nil {
		return "", err
	} else if ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := s.Set(ctx, key, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed value too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}

func loadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("device key %s has wrong size %d", path, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read device key: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write device key: %w", err)
	}
	return key, nil
}
