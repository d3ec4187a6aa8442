package vault

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// LoginSecrets 是券商登录所需、但不落入关系库的口令信息。
type LoginSecrets struct {
	Password string `json:"password"`
	TwoFA    string `json:"two_fa"`
	TOTP     string `json:"totp,omitempty"`
}

// SecretStore keeps per-client login secrets in badger, encrypted at rest when a key is given.
type SecretStore struct {
	db       *badger.DB
	fallback LoginSecrets
}

type SecretStoreOptions struct {
	Path string
	// EncryptionKey must be 32 bytes; nil opens badger without encryption.
	EncryptionKey []byte
	// InMemory is used by tests.
	InMemory bool
	Fallback LoginSecrets
}

func OpenSecretStore(opts SecretStoreOptions) (*SecretStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("secretstore: path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// badger 加密模式需要 index cache
		bopts = bopts.WithEncryptionKey(opts.EncryptionKey).WithIndexCacheSize(16 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("secretstore: open: %w", err)
	}
	return &SecretStore{db: db, fallback: opts.Fallback}, nil
}

func (s *SecretStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func loginKey(clientCode string) []byte {
	return []byte("login/" + strings.TrimSpace(clientCode))
}

// PutLogin stores the secrets for clientCode, replacing any previous value.
func (s *SecretStore) PutLogin(clientCode string, secrets LoginSecrets) error {
	if strings.TrimSpace(clientCode) == "" {
		return errors.New("secretstore: client code is empty")
	}
	raw, err := json.Marshal(secrets)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(loginKey(clientCode), raw)
	})
}

// Login returns the stored secrets, or the configured fallback when none exist.
func (s *SecretStore) Login(clientCode string) (LoginSecrets, error) {
	var (
		out   LoginSecrets
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(loginKey(clientCode))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return LoginSecrets{}, fmt.Errorf("secretstore: read %s: %w", clientCode, err)
	}
	if !found {
		return s.fallback, nil
	}
	return out, nil
}

// ParseKey accepts 32 bytes as hex (optionally 0x-prefixed) or base64. Empty input yields nil.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	return b, nil
}
