// Package secret seals credential fields at the persistence boundary.
// Plaintext exists only between Open and the construction of a storage
// client; ciphertext never reaches the emulator.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrNotInitialized = errors.New("secret: keeper not initialized")

type Keeper struct {
	key [chacha20poly1305.KeySize]byte
}

// NewKeeper derives a sealing key from arbitrary key material.
func NewKeeper(appKey string) (*Keeper, error) {
	if appKey == "" {
		return nil, errors.New("secret: empty key material")
	}
	k := &Keeper{key: sha256.Sum256([]byte(appKey))}
	return k, nil
}

// Seal encrypts plaintext and returns a base64 token with the nonce prepended.
// An empty plaintext seals to an empty token.
func (k *Keeper) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal. An empty token opens to "".
func (k *Keeper) Open(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("secret: malformed token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(k.key[:])
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("secret: token too short")
	}
	nonce, box := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", errors.New("secret: open failed (wrong key or corrupt token)")
	}
	return string(pt), nil
}

var defaultKeeper *Keeper

// Init sets the process-wide keeper used by the package-level Seal/Open.
func Init(appKey string) error {
	k, err := NewKeeper(appKey)
	if err != nil {
		return err
	}
	defaultKeeper = k
	return nil
}

func Seal(plaintext string) (string, error) {
	if defaultKeeper == nil {
		return "", ErrNotInitialized
	}
	return defaultKeeper.Seal(plaintext)
}

func Open(token string) (string, error) {
	if defaultKeeper == nil {
		return "", ErrNotInitialized
	}
	return defaultKeeper.Open(token)
}
