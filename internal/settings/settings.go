// Package settings stores provider credentials and user preferences in a
// local SQLite database.
//
// Credentials are encrypted at rest with a key derived from a 0600 key file
// next to the database. An environment variable TEXTASSIST_<KEY> (for
// example TEXTASSIST_OPENAI_API_KEY) takes precedence over the stored value.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"textassist/internal/prompt"
	"textassist/internal/security"
)

var (
	// ErrNotFound is returned for a preference that was never set.
	ErrNotFound = errors.New("settings: not found")

	// ErrInvalidKey is returned for a malformed credential or preference name.
	ErrInvalidKey = errors.New("settings: invalid key")
)

// EnvPrefix prefixes credential override variables.
const EnvPrefix = "TEXTASSIST_"

// Preference names.
const (
	PrefTone              = "tone"
	PrefCustomInstruction = "custom_instruction"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Store is the settings database. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	sealer *security.Sealer
	mu     sync.RWMutex

	// lookupEnv is os.LookupEnv, replaceable in tests.
	lookupEnv func(string) (string, bool)
}

// Open opens or creates the database at path. The encryption key is read
// from keyPath, which is created on first use.
func Open(path, keyPath string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, security.PermSecretDir); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}

	master, err := security.LoadOrCreateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("settings key: %w", err)
	}
	derived, err := security.DeriveKey(master, "settings-credentials-v1")
	security.Wipe(master)
	if err != nil {
		return nil, err
	}
	sealer, err := security.NewSealer(derived)
	security.Wipe(derived)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := os.Chmod(path, security.PermSecretFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("restrict database permissions: %w", err)
	}

	return &Store{db: db, sealer: sealer, lookupEnv: os.LookupEnv}, nil
}

// Close closes the database and wipes the encryption key.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealer != nil {
		s.sealer.Destroy()
		s.sealer = nil
	}
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// EnvVar returns the override variable for a credential key.
func EnvVar(providerKey string) string {
	return EnvPrefix + strings.ToUpper(providerKey)
}

// Credential returns the credential stored under providerKey, or "" if none
// is set. An environment override wins.
func (s *Store) Credential(providerKey string) (string, error) {
	if !keyPattern.MatchString(providerKey) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, providerKey)
	}
	if v, ok := s.lookupEnv(EnvVar(providerKey)); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var nonce, ciphertext []byte
	err := s.db.QueryRow(
		"SELECT nonce, ciphertext FROM credentials WHERE provider_key = ?", providerKey,
	).Scan(&nonce, &ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query credential: %w", err)
	}

	plaintext, err := s.sealer.Open(nonce, ciphertext, []byte(providerKey))
	if err != nil {
		return "", fmt.Errorf("credential %s: %w", providerKey, err)
	}
	return string(plaintext), nil
}

// SetCredential stores value under providerKey. A blank value deletes the
// credential.
func (s *Store) SetCredential(providerKey, value string) error {
	if !keyPattern.MatchString(providerKey) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, providerKey)
	}
	value = strings.TrimSpace(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if value == "" {
		if _, err := s.db.Exec("DELETE FROM credentials WHERE provider_key = ?", providerKey); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		return nil
	}

	nonce, ciphertext, err := s.sealer.Seal([]byte(value), []byte(providerKey))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO credentials (provider_key, nonce, ciphertext, updated_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider_key) DO UPDATE SET
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			updated_ns = excluded.updated_ns`,
		providerKey, nonce, ciphertext, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// CredentialSource says where a credential comes from.
type CredentialSource string

const (
	SourceNone  CredentialSource = "none"
	SourceEnv   CredentialSource = "env"
	SourceStore CredentialSource = "store"
)

// CredentialStatus describes one credential without revealing it.
type CredentialStatus struct {
	Key       string
	Source    CredentialSource
	UpdatedAt time.Time
}

// Set reports whether the credential is available.
func (c CredentialStatus) Set() bool {
	return c.Source != SourceNone
}

// Status reports where each credential comes from.
func (s *Store) Status(providerKeys ...string) ([]CredentialStatus, error) {
	out := make([]CredentialStatus, 0, len(providerKeys))
	for _, key := range providerKeys {
		if !keyPattern.MatchString(key) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		st := CredentialStatus{Key: key, Source: SourceNone}

		s.mu.RLock()
		var updated int64
		err := s.db.QueryRow("SELECT updated_ns FROM credentials WHERE provider_key = ?", key).Scan(&updated)
		s.mu.RUnlock()
		switch {
		case err == nil:
			st.Source = SourceStore
			st.UpdatedAt = time.Unix(0, updated)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("query credential: %w", err)
		}

		if v, ok := s.lookupEnv(EnvVar(key)); ok && strings.TrimSpace(v) != "" {
			st.Source = SourceEnv
		}
		out = append(out, st)
	}
	return out, nil
}

// Preference returns a named preference or ErrNotFound.
func (s *Store) Preference(name string) (string, error) {
	if !keyPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query preference: %w", err)
	}
	return value, nil
}

// SetPreference stores a named preference. An empty value deletes it.
func (s *Store) SetPreference(name, value string) error {
	if !keyPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if value == "" {
		_, err = s.db.Exec("DELETE FROM preferences WHERE name = ?", name)
	} else {
		_, err = s.db.Exec(`
			INSERT INTO preferences (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	}
	if err != nil {
		return fmt.Errorf("store preference: %w", err)
	}
	return nil
}

// Preferences are the tone and custom instruction applied to requests.
type Preferences struct {
	Tone              prompt.Tone
	CustomInstruction string
}

// Preferences returns the stored preferences. Unset values are zero; an
// unknown stored tone reads as ToneNone.
func (s *Store) Preferences() (Preferences, error) {
	var p Preferences

	tone, err := s.Preference(PrefTone)
	switch {
	case err == nil:
		if t, perr := prompt.ParseTone(tone); perr == nil {
			p.Tone = t
		}
	case !errors.Is(err, ErrNotFound):
		return Preferences{}, err
	}

	custom, err := s.Preference(PrefCustomInstruction)
	switch {
	case err == nil:
		p.CustomInstruction = custom
	case !errors.Is(err, ErrNotFound):
		return Preferences{}, err
	}
	return p, nil
}

// SetPreferences stores p.
func (s *Store) SetPreferences(p Preferences) error {
	tone := p.Tone.ID()
	if p.Tone == prompt.ToneNone {
		tone = ""
	}
	if err := s.SetPreference(PrefTone, tone); err != nil {
		return err
	}
	return s.SetPreference(PrefCustomInstruction, strings.TrimSpace(p.CustomInstruction))
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schemaVersion(s.db)
}
