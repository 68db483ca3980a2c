package enginestate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/denisbrodbeck/machineid"
)

// appID seeds the machine-bound key derivation. Changing it invalidates
// every existing state blob.
const appID = "savebox"

// deriveKey builds the AES-256 key from the machine's protected app ID, so
// the blob cannot be decrypted off-machine.
func deriveKey() ([]byte, error) {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return nil, fmt.Errorf("derive machine key: %w", err)
	}
	sum := sha256.Sum256([]byte(id))
	return sum[:], nil
}

// seal encrypts plain as nonce||ciphertext with AES-256-GCM.
func (s *Store) seal(plain []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

// open decrypts a nonce||ciphertext blob produced by seal.
func (s *Store) open(sealed []byte) ([]byte, error) {
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("blob too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (s *Store) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
