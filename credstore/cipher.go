package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"os/user"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for deriving the store key from the local user account.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

const saltLength = 32

// cipherBox seals and opens secret values with XChaCha20-Poly1305. The nonce
// is prepended to each sealed value.
type cipherBox struct {
	aead cipher.AEAD
}

func newCipherBox(key []byte) (*cipherBox, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "[newCipherBox] chacha20poly1305.NewX")
	}
	return &cipherBox{aead: aead}, nil
}

func (b *cipherBox) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[cipherBox.seal] rand.Read")
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (b *cipherBox) open(sealed []byte) ([]byte, error) {
	if len(sealed) < b.aead.NonceSize() {
		return nil, errors.New("[cipherBox.open] sealed value too short")
	}
	nonce, ciphertext := sealed[:b.aead.NonceSize()], sealed[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[cipherBox.open] aead.Open")
	}
	return plaintext, nil
}

// deriveUserKey derives the protection key from the local account identity
// and a per-install salt, binding stored secrets to the current user.
func deriveUserKey(salt []byte) ([]byte, error) {
	u, err := user.Current()
	if err != nil {
		return nil, errors.Wrap(err, "[deriveUserKey] user.Current")
	}
	return scrypt.Key([]byte(u.Uid+":"+u.Username), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "[newSalt] rand.Read")
	}
	return salt, nil
}
