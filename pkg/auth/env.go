package auth

import (
	"os"
	"time"
)

// EnvBackend exposes the IGRESOLVER_USERNAME / IGRESOLVER_PASSWORD pair as a
// single read-only account
type EnvBackend struct{}

func (EnvBackend) Name() string { return "environment" }

func (EnvBackend) Put(Account) error { return ErrReadOnly }

func (EnvBackend) Remove(string) error { return ErrReadOnly }

func (EnvBackend) Get(username string) (Account, error) {
	user := os.Getenv("IGRESOLVER_USERNAME")
	password := os.Getenv("IGRESOLVER_PASSWORD")
	if user == "" || password == "" || (username != "" && username != user) {
		return Account{}, ErrCredentialsNotFound
	}
	// the environment always counts as the freshest copy
	return Account{Username: user, Password: password, LastModified: time.Now()}, nil
}

func (e EnvBackend) Usernames() ([]string, error) {
	account, err := e.Get("")
	if err != nil {
		return nil, nil
	}
	return []string{account.Username}, nil
}
