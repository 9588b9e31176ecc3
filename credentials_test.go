package voiceagent

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearKeyEnv removes the API key variables for the duration of the test.
func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{ApiKeyEnvVarName, ApiKeyEnvVarNameAlt} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestFileCredentialStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := &FileCredentialStore{Path: path}

	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Save("dg-secret"))

	key, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "dg-secret", key)
}

func TestFileCredentialStoreEmptyKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_key":""}`), 0o600))

	store := &FileCredentialStore{Path: path}
	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestResolveCredentialExplicitKey(t *testing.T) {
	clearKeyEnv(t)

	c := New(WithKey("explicit"))
	key, err := c.resolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "explicit", key)
}

func TestResolveCredentialEnv(t *testing.T) {
	clearKeyEnv(t)

	c := New()
	t.Setenv(ApiKeyEnvVarNameAlt, "from-env")

	key, err := c.resolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestResolveCredentialDotEnv(t *testing.T) {
	clearKeyEnv(t)
	t.Chdir(t.TempDir())

	require.NoError(t, os.WriteFile(".env", []byte(ApiKeyEnvVarName+"=from-dotenv\n"), 0o600))

	c := New(WithDotEnv())
	key, err := c.resolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", key)
}

func TestResolveCredentialStoreAndPrompt(t *testing.T) {
	clearKeyEnv(t)

	store := &FileCredentialStore{Path: filepath.Join(t.TempDir(), "credentials.json")}

	prompts := 0
	c := New(
		WithCredentialStore(store),
		WithCredentialPrompt(func() (string, error) {
			prompts++
			return "prompted-key", nil
		}),
	)

	key, err := c.resolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "prompted-key", key)
	assert.Equal(t, 1, prompts)

	// the answer is persisted for the next session
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "prompted-key", saved)

	// and cached, so the user is not asked twice
	_, err = c.resolveCredential()
	require.NoError(t, err)
	assert.Equal(t, 1, prompts)
}

func TestResolveCredentialStoreWins(t *testing.T) {
	clearKeyEnv(t)

	store := &FileCredentialStore{Path: filepath.Join(t.TempDir(), "credentials.json")}
	require.NoError(t, store.Save("stored-key"))

	c := New(
		WithCredentialStore(store),
		WithCredentialPrompt(func() (string, error) {
			t.Fatal("prompt must not be reached when the store has a key")
			return "", nil
		}),
	)

	key, err := c.resolveCredential()
	require.NoError(t, err)
	assert.Equal(t, "stored-key", key)
}

func TestResolveCredentialNone(t *testing.T) {
	clearKeyEnv(t)

	c := New()
	_, err := c.resolveCredential()
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestResolveCredentialPromptError(t *testing.T) {
	clearKeyEnv(t)

	c := New(WithCredentialPrompt(func() (string, error) {
		return "", errors.New("stdin closed")
	}))

	_, err := c.resolveCredential()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCredential)
}
