package tokens

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encryptor seals secrets before they are written to the database.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SecretBox is an XChaCha20-Poly1305 Encryptor. Output is
// base64(nonce || ciphertext).
type SecretBox struct {
	key []byte
}

// NewSecretBox takes a base64 encoded 32 byte key.
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errors.Wrap(err, "token encryption key is not valid base64")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("token encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &SecretBox{key: key}, nil
}

func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", errors.WithStack(err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.WithStack(err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *SecretBox) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.WithStack(err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("sealed token is too short")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", errors.Wrap(err, "decrypting token")
	}
	return string(plaintext), nil
}
