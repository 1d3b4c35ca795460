// Package settings stores ftlbot secrets outside the configuration file.
//
// Everything lives in the XDG data directory:
//
//	$XDG_DATA_HOME/ftlbot/  (default: ~/.local/share/ftlbot/)
//
// auth.json is a JSON object keyed by service ID ("github", "telegram" or a
// translation provider ID such as "groq"). Each value holds a token or API
// key and, for custom endpoints, a base URL. File permissions are 0600.
//
// Lookup order for every secret:
//  1. command-line flag
//  2. environment variable (see EnvVarFor)
//  3. this credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = "ftlbot"
	fileName    = "auth.json"
)

// Service IDs that are not translation providers.
const (
	GitHub   = "github"
	Telegram = "telegram"
)

// Info is the entry stored per service in auth.json.
type Info struct {
	// Key is the token or API key.
	Key string `json:"key"`
	// BaseURL is an optional endpoint (custom-openai, GitHub Enterprise).
	BaseURL string `json:"baseUrl,omitempty"`
}

// Store holds all credentials, keyed by service ID.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for ftlbot.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the ftlbot data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for a service, or nil if not found.
func Get(id string) *Info {
	return Load()[id]
}

// Set stores an entry for a service (upsert).
func Set(id string, info *Info) error {
	store := Load()
	store[id] = info
	return Save(store)
}

// SetKey stores a bare token or API key.
func SetKey(id, key string) error {
	return Set(id, &Info{Key: key})
}

// SetKeyWithBaseURL stores a key together with its endpoint.
func SetKeyWithBaseURL(id, key, baseURL string) error {
	return Set(id, &Info{Key: key, BaseURL: baseURL})
}

// GetKey returns the stored key for a service, or "".
func GetKey(id string) string {
	if info := Get(id); info != nil {
		return info.Key
	}
	return ""
}

// GetBaseURL returns the stored endpoint for a service, or "".
func GetBaseURL(id string) string {
	if info := Get(id); info != nil {
		return info.BaseURL
	}
	return ""
}

// Remove deletes credentials for a service.
func Remove(id string) error {
	store := Load()
	if _, ok := store[id]; !ok {
		return nil
	}
	delete(store, id)
	return Save(store)
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// EnvVarFor returns the conventional environment variable for a service,
// or "" when there is none.
func EnvVarFor(id string) string {
	switch id {
	case GitHub:
		return "GITHUB_TOKEN"
	case Telegram:
		return "TELEGRAM_BOT_TOKEN"
	case "gemini":
		return "GEMINI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	case "custom-openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// Resolve returns the first non-empty value of flag, the service's
// environment variable and the stored key.
func Resolve(id, flag string) string {
	if flag != "" {
		return flag
	}
	if env := EnvVarFor(id); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return GetKey(id)
}

// MaskKey returns a masked version of a key/token for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
