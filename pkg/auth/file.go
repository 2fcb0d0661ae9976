package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	fileVersion      = 2
	saltSize         = 32
	keySize          = 32
	pbkdf2Iterations = 100000
)

// sealedFile is the on-disk form. Byte fields are base64 through encoding/json.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileBackend keeps accounts in an AES-GCM sealed JSON file. The key is
// derived from a passphrase with PBKDF2-SHA256.
type FileBackend struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewFileBackend opens path with the passphrase from IGRESOLVER_PASSPHRASE,
// or one generated once and kept next to the file.
func NewFileBackend(path string) (*FileBackend, error) {
	passphrase, err := filePassphrase(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return NewFileBackendWithPassphrase(path, passphrase)
}

// NewFileBackendWithPassphrase opens path with an explicit passphrase
func NewFileBackendWithPassphrase(path, passphrase string) (*FileBackend, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileBackend{path: path, passphrase: passphrase}, nil
}

func (f *FileBackend) Name() string { return "encrypted file" }

func (f *FileBackend) Put(account Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts, salt, err := f.read()
	if err != nil {
		return err
	}
	accounts[account.Username] = account
	return f.write(accounts, salt)
}

func (f *FileBackend) Get(username string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts, _, err := f.read()
	if err != nil {
		return Account{}, err
	}
	account, ok := accounts[username]
	if !ok {
		return Account{}, ErrCredentialsNotFound
	}
	return account, nil
}

func (f *FileBackend) Usernames() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts, _, err := f.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes username; the file itself goes with the last account
func (f *FileBackend) Remove(username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	accounts, salt, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, username)

	if len(accounts) == 0 {
		return os.Remove(f.path)
	}
	return f.write(accounts, salt)
}

// read returns an empty set for a missing file
func (f *FileBackend) read() (map[string]Account, []byte, error) {
	accounts := make(map[string]Account)

	content, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return accounts, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(content, &sealed); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if sealed.Version != fileVersion {
		return nil, nil, fmt.Errorf("unsupported credential file version %d", sealed.Version)
	}

	gcm, err := newGCM(f.key(sealed.Salt))
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt credential file: %w", err)
	}
	if err := json.Unmarshal(plaintext, &accounts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, sealed.Salt, nil
}

func (f *FileBackend) write(accounts map[string]Account, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plaintext, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	gcm, err := newGCM(f.key(salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	content, err := json.MarshalIndent(sealedFile{
		Version:    fileVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileBackend) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(f.passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func filePassphrase(dir string) (string, error) {
	if pass := os.Getenv("IGRESOLVER_PASSPHRASE"); pass != "" {
		return pass, nil
	}

	path := filepath.Join(dir, ".passphrase")
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := fmt.Sprintf("%x", b)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
