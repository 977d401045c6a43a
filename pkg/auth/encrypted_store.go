package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 32
	keySize        = 32
	kdfIterations  = 100000
	blobExtension  = ".blob"
	passphraseFile = ".passphrase"
)

// EncryptedFileStore implements Store using one AES-GCM encrypted file per
// key under a directory. The passphrase is generated once and kept next to
// the blobs with owner-only permissions.
type EncryptedFileStore struct {
	dir        string
	passphrase string
	mu         sync.Mutex
}

// NewEncryptedFileStore creates an encrypted file store rooted at dir.
func NewEncryptedFileStore(dir string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &EncryptedFileStore{dir: dir}
	passphrase, err := s.loadOrCreatePassphrase()
	if err != nil {
		return nil, err
	}
	s.passphrase = passphrase
	return s, nil
}

func (s *EncryptedFileStore) loadOrCreatePassphrase() (string, error) {
	path := filepath.Join(s.dir, passphraseFile)
	if data, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := hex.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to persist passphrase: %w", err)
	}
	return passphrase, nil
}

func (s *EncryptedFileStore) path(key string) string {
	// Keys are account usernames; keep only filename-safe characters.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(s.dir, safe+blobExtension)
}

// Save encrypts and writes the blob for key.
func (s *EncryptedFileStore) Save(key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.cipher(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// File layout: salt || nonce || ciphertext.
	sealed := gcm.Seal(nil, nonce, data, nil)
	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)

	if err := os.WriteFile(s.path(key), out, 0600); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Load reads and decrypts the blob for key.
func (s *EncryptedFileStore) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	if len(raw) < saltSize {
		return nil, fmt.Errorf("corrupt blob for key %q", key)
	}

	salt := raw[:saltSize]
	gcm, err := s.cipher(salt)
	if err != nil {
		return nil, err
	}
	if len(raw) < saltSize+gcm.NonceSize() {
		return nil, fmt.Errorf("corrupt blob for key %q", key)
	}
	nonce := raw[saltSize : saltSize+gcm.NonceSize()]
	sealed := raw[saltSize+gcm.NonceSize():]

	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}
	return data, nil
}

// Remove deletes the blob for key.
func (s *EncryptedFileStore) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

func (s *EncryptedFileStore) cipher(salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(s.passphrase), salt, kdfIterations, keySize, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
