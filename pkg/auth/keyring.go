package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "igresolver"
	// keyringIndex lists the stored usernames; the keychain API cannot
	// enumerate entries.
	keyringIndex  = "accounts"
	keyringPrefix = "account:"
)

type keyringEntry struct {
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// KeyringBackend keeps accounts in the system keychain
type KeyringBackend struct {
	service string
}

// NewKeyringBackend probes the keychain and fails when it is unusable, e.g.
// on a headless host without a secret service.
func NewKeyringBackend() (*KeyringBackend, error) {
	k := &KeyringBackend{service: keyringService}
	if _, err := keyring.Get(k.service, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	return k, nil
}

func (k *KeyringBackend) Name() string { return "keyring" }

func (k *KeyringBackend) Put(account Account) error {
	data, err := json.Marshal(keyringEntry{Password: account.Password, LastModified: account.LastModified})
	if err != nil {
		return err
	}
	if err := keyring.Set(k.service, keyringPrefix+account.Username, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return k.updateIndex(func(names map[string]bool) { names[account.Username] = true })
}

func (k *KeyringBackend) Get(username string) (Account, error) {
	data, err := keyring.Get(k.service, keyringPrefix+username)
	if errors.Is(err, keyring.ErrNotFound) {
		return Account{}, ErrCredentialsNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to read keyring: %w", err)
	}

	var entry keyringEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Account{}, fmt.Errorf("corrupt keyring entry for %s: %w", username, err)
	}
	return Account{Username: username, Password: entry.Password, LastModified: entry.LastModified}, nil
}

func (k *KeyringBackend) Usernames() ([]string, error) {
	names, err := k.index()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (k *KeyringBackend) Remove(username string) error {
	err := keyring.Delete(k.service, keyringPrefix+username)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.updateIndex(func(names map[string]bool) { delete(names, username) })
}

func (k *KeyringBackend) index() (map[string]bool, error) {
	names := make(map[string]bool)
	data, err := keyring.Get(k.service, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return names, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}

	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("corrupt keyring index: %w", err)
	}
	for _, name := range list {
		names[name] = true
	}
	return names, nil
}

func (k *KeyringBackend) updateIndex(change func(map[string]bool)) error {
	names, err := k.index()
	if err != nil {
		return err
	}
	change(names)

	if len(names) == 0 {
		if err := keyring.Delete(k.service, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring index: %w", err)
		}
		return nil
	}

	list := make([]string, 0, len(names))
	for name := range names {
		list = append(list, name)
	}
	sort.Strings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, keyringIndex, string(data))
}
