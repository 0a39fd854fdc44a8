package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// User is the cached profile snapshot returned by the API. It is advisory
// only; the server remains authoritative.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
}

// APIKey is a locally cached record of a generated key.
type APIKey struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// Credential is the locally persisted session state. User and APIKeys are
// meaningful only while Token is set; logout resets the whole structure.
type Credential struct {
	Token   string   `json:"token,omitempty"`
	User    *User    `json:"user,omitempty"`
	APIKeys []APIKey `json:"apiKeys,omitempty"`
}

// LoggedIn reports whether a session token is present.
func (c Credential) LoggedIn() bool { return c.Token != "" }

func dir() (string, error) {
	if v := os.Getenv("EDPEAR_CONFIG_DIR"); v != "" {
		return v, nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "edpear"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "edpear"), nil
}

// Path returns the credential file location.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.json"), nil
}

// Load reads the credential file. A missing, unreadable, or malformed file
// yields a zero-value Credential: first run and corruption are both treated
// as "no credential yet", and the next Save rewrites the file.
func Load() Credential {
	p, err := Path()
	if err != nil {
		return Credential{}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return Credential{}
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}
	}
	return cred
}

// Save writes the credential to disk atomically using a temp file + rename,
// so a concurrent reader never observes a half-written file.
func Save(cred Credential) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	// Remove dest first for Windows compat (os.Rename fails if dest exists on Windows).
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Clear writes back an empty Credential. Token, cached user, and cached
// keys are all reset in one stroke.
func Clear() error {
	return Save(Credential{})
}
