package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textassist/internal/prompt"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "settings.db"), filepath.Join(dir, "settings.key"))
	require.NoError(t, err)
	s.lookupEnv = func(string) (string, bool) { return "", false }
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestOpenAppliesMigrations(t *testing.T) {
	s, dir := openTestStore(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "settings.db"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestCredentialLifecycle(t *testing.T) {
	s, _ := openTestStore(t)

	v, err := s.Credential("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "", v, "absent credential reads as empty")

	require.NoError(t, s.SetCredential("openai_api_key", "  sk-live-123\n"))
	v, err = s.Credential("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", v)

	require.NoError(t, s.SetCredential("openai_api_key", "sk-live-456"))
	v, err = s.Credential("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-456", v)

	require.NoError(t, s.SetCredential("openai_api_key", ""))
	v, err = s.Credential("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestCredentialsEncryptedAtRest(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.SetCredential("gemini_api_key", "AIza-plaintext-marker"))

	var ciphertext []byte
	require.NoError(t, s.db.QueryRow(
		"SELECT ciphertext FROM credentials WHERE provider_key = ?", "gemini_api_key",
	).Scan(&ciphertext))
	assert.NotContains(t, string(ciphertext), "plaintext-marker")
}

func TestCredentialSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath, keyPath := filepath.Join(dir, "settings.db"), filepath.Join(dir, "settings.key")

	s, err := Open(dbPath, keyPath)
	require.NoError(t, err)
	require.NoError(t, s.SetCredential("anthropic_api_key", "ak-1"))
	require.NoError(t, s.Close())

	s, err = Open(dbPath, keyPath)
	require.NoError(t, err)
	defer s.Close()
	s.lookupEnv = func(string) (string, bool) { return "", false }

	v, err := s.Credential("anthropic_api_key")
	require.NoError(t, err)
	assert.Equal(t, "ak-1", v)
}

func TestCredentialWithDifferentKeyFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "settings.db")

	s, err := Open(dbPath, filepath.Join(dir, "a.key"))
	require.NoError(t, err)
	require.NoError(t, s.SetCredential("openai_api_key", "sk"))
	require.NoError(t, s.Close())

	s, err = Open(dbPath, filepath.Join(dir, "b.key"))
	require.NoError(t, err)
	defer s.Close()
	s.lookupEnv = func(string) (string, bool) { return "", false }

	_, err = s.Credential("openai_api_key")
	assert.Error(t, err)
}

func TestEnvOverrideWins(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.SetCredential("openai_api_key", "stored"))

	s.lookupEnv = func(name string) (string, bool) {
		if name == "TEXTASSIST_OPENAI_API_KEY" {
			return " from-env ", true
		}
		return "", false
	}

	v, err := s.Credential("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	st, err := s.Status("openai_api_key", "gemini_api_key")
	require.NoError(t, err)
	require.Len(t, st, 2)
	assert.Equal(t, SourceEnv, st[0].Source)
	assert.True(t, st[0].Set())
	assert.Equal(t, SourceNone, st[1].Source)
	assert.False(t, st[1].Set())
}

func TestStatusFromStore(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.SetCredential("gemini_api_key", "g"))

	st, err := s.Status("gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, st[0].Source)
	assert.False(t, st[0].UpdatedAt.IsZero())
}

func TestInvalidKeys(t *testing.T) {
	s, _ := openTestStore(t)
	for _, key := range []string{"", "Upper", "has space", "1starts_with_digit", strings.Repeat("a", 65)} {
		_, err := s.Credential(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, s.SetCredential(key, "v"), ErrInvalidKey, key)
		_, err = s.Preference(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "TEXTASSIST_GEMINI_API_KEY", EnvVar("gemini_api_key"))
}

func TestPreferences(t *testing.T) {
	s, _ := openTestStore(t)

	p, err := s.Preferences()
	require.NoError(t, err)
	assert.Equal(t, Preferences{}, p)

	_, err = s.Preference(PrefTone)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetPreferences(Preferences{Tone: prompt.TonePersuasive, CustomInstruction: " Make it rhyme. "}))
	p, err = s.Preferences()
	require.NoError(t, err)
	assert.Equal(t, prompt.TonePersuasive, p.Tone)
	assert.Equal(t, "Make it rhyme.", p.CustomInstruction)

	require.NoError(t, s.SetPreferences(Preferences{}))
	p, err = s.Preferences()
	require.NoError(t, err)
	assert.Equal(t, Preferences{}, p)
}

func TestUnknownStoredToneReadsAsNone(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.SetPreference(PrefTone, "sarcastic"))

	p, err := s.Preferences()
	require.NoError(t, err)
	assert.Equal(t, prompt.ToneNone, p.Tone)
}
