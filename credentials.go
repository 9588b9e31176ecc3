package voiceagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore persists the API key between sessions.
type CredentialStore interface {
	// Load returns the stored key, or ErrNoCredential if none is stored.
	Load() (string, error)
	// Save stores the key for future sessions.
	Save(key string) error
}

// CredentialPrompt asks the user for an API key when none is stored.
// Returning an empty key or an error aborts the connect attempt.
type CredentialPrompt func() (string, error)

// FileCredentialStore keeps the key in a JSON file under the user's config
// directory.
type FileCredentialStore struct {
	Path string
}

type storedCredentials struct {
	APIKey string `json:"api_key"`
}

// NewFileCredentialStore returns a store at the default location,
// e.g. ~/.config/voiceagent/credentials.json.
func NewFileCredentialStore() (*FileCredentialStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return &FileCredentialStore{
		Path: filepath.Join(dir, "voiceagent", "credentials.json"),
	}, nil
}

func (s *FileCredentialStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("read credentials: %w", err)
	}

	var creds storedCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("parse credentials %s: %w", s.Path, err)
	}
	if creds.APIKey == "" {
		return "", ErrNoCredential
	}
	return creds.APIKey, nil
}

func (s *FileCredentialStore) Save(key string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(storedCredentials{APIKey: key}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
