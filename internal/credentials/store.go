package credentials

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
)

// Sentinel errors
var (
	// ErrNotFound is returned when no credential pair is stored.
	ErrNotFound = errors.New("credential pair not found")

	// ErrIncompletePair is returned when one half of a pair is missing.
	ErrIncompletePair = errors.New("credential pair is incomplete")
)

// Fixed key names used when persisting a pair.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// Pair is the opaque bearer token pair issued by the auth backend.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Complete reports whether both halves of the pair are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Storage persists a single credential pair. Set and Clear always act on the
// pair as a unit.
type Storage interface {
	Set(pair Pair) error
	Get() (*Pair, error)
	Clear() error
}

// Fingerprint returns a short, log-safe identifier for a token.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:8])
}

// document is the on-disk representation of a stored pair.
type document struct {
	Version      int       `json:"version"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FileStore keeps the pair in a single JSON file that is replaced atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Storage = (*FileStore)(nil)

// NewFileStore creates a file backed store.
// If path is empty, uses ~/.timax/session.json
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".timax", "session.json")
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	log.Debug().Str("path", path).Msg("Credential store initialized")

	return &FileStore{path: path}, nil
}

// Path returns the location of the credentials file.
func (s *FileStore) Path() string {
	return s.path
}

// Set writes both tokens in a single atomic replace.
func (s *FileStore) Set(pair Pair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}

	data, err := json.MarshalIndent(document{
		Version:      1,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedAt:    time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	// atomic.WriteFile copies the mode of a file it replaces
	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("failed to set credentials permissions: %w", err)
	}

	log.Debug().
		Str("access", Fingerprint(pair.AccessToken)).
		Str("refresh", Fingerprint(pair.RefreshToken)).
		Msg("Credential pair stored")

	return nil
}

// Get reads the stored pair. A damaged or half written file is reported as
// ErrNotFound and left in place; only Set and Clear write to the file.
func (s *FileStore) Get() (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Ignoring unreadable credentials")
		return nil, ErrNotFound
	}

	pair := Pair{AccessToken: doc.AccessToken, RefreshToken: doc.RefreshToken}
	if !pair.Complete() {
		log.Warn().Str("path", s.path).Msg("Ignoring incomplete credential pair")
		return nil, ErrNotFound
	}

	return &pair, nil
}

// Clear removes the stored pair. Clearing an empty store is not an error.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	log.Debug().Str("path", s.path).Msg("Credential pair cleared")

	return nil
}

// MemoryStore keeps the pair in memory only.
type MemoryStore struct {
	mu   sync.RWMutex
	pair *Pair
}

var _ Storage = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Set(pair Pair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}
	m.mu.Lock()
	m.pair = &pair
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get() (*Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return nil, ErrNotFound
	}
	pair := *m.pair
	return &pair, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.pair = nil
	m.mu.Unlock()
	return nil
}
