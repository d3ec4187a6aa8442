package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDecryptFailed is returned for any ciphertext that cannot be authenticated.
var ErrDecryptFailed = errors.New("vault: decrypt failed")

// Vault 对客户凭据做对称加解密，密钥由 security.secret_key 派生。
type Vault struct {
	aead cipher.AEAD
}

// New derives an AES-256 key as sha256(secret).
func New(secret string) (*Vault, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("vault: secret key cannot be empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// Encrypt returns nonce|sealed.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: read nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	ns := v.aead.NonceSize()
	if len(ciphertext) < ns+v.aead.Overhead() {
		return nil, ErrDecryptFailed
	}
	plain, err := v.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

func (v *Vault) EncryptString(s string) ([]byte, error) {
	return v.Encrypt([]byte(s))
}

func (v *Vault) DecryptString(ciphertext []byte) (string, error) {
	plain, err := v.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
