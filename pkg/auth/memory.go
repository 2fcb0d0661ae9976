package auth

import (
	"sort"
	"sync"
)

// MemoryBackend keeps accounts in process. Fail, when set, is returned from
// every write.
type MemoryBackend struct {
	Fail error

	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{accounts: make(map[string]Account)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Put(account Account) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Username] = account
	return nil
}

func (m *MemoryBackend) Get(username string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[username]
	if !ok {
		return Account{}, ErrCredentialsNotFound
	}
	return account, nil
}

func (m *MemoryBackend) Usernames() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.accounts))
	for name := range m.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) Remove(username string) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, username)
	return nil
}

// Len reports how many accounts are held
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}
