package relay

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	symKeySize = chacha20poly1305.KeySize

	// type 0 envelope: 0x00 || nonce || ciphertext
	envelopeType0 byte = 0
)

var ErrBadEnvelope = errors.New("relay: cannot open envelope")

func newSymKey() ([]byte, error) {
	key := make([]byte, symKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "rand symKey")
	}
	return key, nil
}

// topicFor derives the pairing topic from the symmetric key.
func topicFor(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

func seal(key, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", errors.Wrap(err, "aead")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "rand nonce")
	}
	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, envelopeType0)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func open(key []byte, message string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(message)
	if err != nil {
		return nil, ErrBadEnvelope
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "aead")
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() || raw[0] != envelopeType0 {
		return nil, ErrBadEnvelope
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrBadEnvelope
	}
	return plain, nil
}
