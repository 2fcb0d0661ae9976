// Package auth keeps the password of the account the private tier signs in
// with, so it never has to live in the configuration file.
//
// A Manager consults its backends in order: the system keychain, an
// encrypted file and finally the IGRESOLVER_USERNAME / IGRESOLVER_PASSWORD
// environment pair.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrReadOnly            = errors.New("credential backend is read only")
)

// Account is one stored login
type Account struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// Backend is one place accounts can be kept
type Backend interface {
	Name() string
	Put(account Account) error
	Get(username string) (Account, error)
	Usernames() ([]string, error)
	Remove(username string) error
}

// Manager fans account operations out over its backends
type Manager struct {
	backends []Backend
	now      func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithBackends replaces the default backend chain
func WithBackends(backends ...Backend) Option {
	return func(m *Manager) { m.backends = backends }
}

// NewManager builds a Manager. Without options it uses the keychain when one
// is reachable, then the encrypted file under the user config directory, then
// the environment.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.backends != nil {
		return m, nil
	}

	if kr, err := NewKeyringBackend(); err == nil {
		m.backends = append(m.backends, kr)
	}

	dir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	file, err := NewFileBackend(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential file: %w", err)
	}
	m.backends = append(m.backends, file, EnvBackend{})

	return m, nil
}

// Store writes the account to the first backend that accepts it
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	if account.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidCredentials)
	}
	account.LastModified = m.now()

	var failures []error
	for _, b := range m.backends {
		err := b.Put(*account)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", b.Name(), err))
	}
	if len(failures) == 0 {
		return errors.New("no credential backends configured")
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(failures...))
}

// Retrieve returns the account from the first backend that has it
func (m *Manager) Retrieve(username string) (*Account, error) {
	for _, b := range m.backends {
		account, err := b.Get(username)
		if err == nil {
			return &account, nil
		}
	}
	return nil, fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
}

// Password returns the stored password for username
func (m *Manager) Password(username string) (string, error) {
	account, err := m.Retrieve(username)
	if err != nil {
		return "", err
	}
	if account.Password == "" {
		return "", fmt.Errorf("%w: empty password for %s", ErrInvalidCredentials, username)
	}
	return account.Password, nil
}

// List returns every known account sorted by username. When several backends
// hold the same username the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	latest := make(map[string]Account)
	for _, b := range m.backends {
		names, err := b.Usernames()
		if err != nil {
			continue
		}
		for _, name := range names {
			account, err := b.Get(name)
			if err != nil {
				continue
			}
			if prev, ok := latest[name]; !ok || account.LastModified.After(prev.LastModified) {
				latest[name] = account
			}
		}
	}

	out := make([]*Account, 0, len(latest))
	for _, account := range latest {
		out = append(out, &account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Delete removes username from every writable backend. It fails with
// ErrCredentialsNotFound when no backend held it.
func (m *Manager) Delete(username string) error {
	removed := false
	var failures []error
	for _, b := range m.backends {
		switch err := b.Remove(username); {
		case err == nil:
			removed = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrReadOnly):
		default:
			failures = append(failures, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to delete credentials: %w", errors.Join(failures...))
	}
	if !removed {
		return fmt.Errorf("%w for user: %s", ErrCredentialsNotFound, username)
	}
	return nil
}

// DeleteAll removes every account List reports
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}
	var failures []error
	for _, account := range accounts {
		err := m.Delete(account.Username)
		if err != nil && !errors.Is(err, ErrCredentialsNotFound) {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// SanitizeAccount returns a copy with the password masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	masked := *account
	masked.Password = maskString(account.Password)
	return &masked
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func configDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "igresolver")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "igresolver")
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".config")
		}
		dir = filepath.Join(base, "igresolver")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}
