// Package securefile stores small JSON documents on disk, optionally sealed
// with a password (Argon2id key derivation, XChaCha20-Poly1305).
package securefile

import (
	"crypto/rand"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	formatV1 = 1
	saltLen  = 16
)

// ErrWrongPassword means the file could not be opened with the given password and AAD.
var ErrWrongPassword = errors.New("wrong password or corrupted file")

// KDF holds the Argon2id cost parameters stored alongside each sealed file.
type KDF struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memoryKiB"`
	Threads   uint8  `json:"threads"`
	KeyLen    uint32 `json:"keyLen"`
}

var DefaultKDF = KDF{Time: 2, MemoryKiB: 64 * 1024, Threads: 1, KeyLen: chacha20poly1305.KeySize}

func (k KDF) derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, k.Time, k.MemoryKiB, k.Threads, k.KeyLen)
}

type Options struct {
	// KDF is used for new files; reads take the parameters from the file.
	KDF           KDF
	FilePerm      os.FileMode
	DirectoryPerm os.FileMode
	// AAD binds the ciphertext to its purpose and must match on read.
	AAD []byte
}

func (o Options) withDefaults() Options {
	if o.KDF.KeyLen == 0 {
		o.KDF = DefaultKDF
	}
	if o.FilePerm == 0 {
		o.FilePerm = constants.FilePerm
	}
	if o.DirectoryPerm == 0 {
		o.DirectoryPerm = constants.DirectoryPerm
	}
	return o
}

func firstOption(opts []Options) Options {
	if len(opts) == 0 {
		return Options{}.withDefaults()
	}
	return opts[0].withDefaults()
}

// sealed is the on-disk form; byte fields are base64 in JSON.
type sealed struct {
	Format     int    `json:"format"`
	KDF        KDF    `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// WriteEncryptedJSON seals the JSON encoding of v under password and writes it atomically.
func WriteEncryptedJSON[T any](path string, v T, password []byte, opts ...Options) error {
	o := firstOption(opts)

	plain, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}

	s := sealed{
		Format: formatV1,
		KDF:    o.KDF,
		Salt:   make([]byte, saltLen),
		Nonce:  make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(s.Salt); err != nil {
		return errors.Wrap(err, "generate salt")
	}
	if _, err := rand.Read(s.Nonce); err != nil {
		return errors.Wrap(err, "generate nonce")
	}
	aead, err := chacha20poly1305.NewX(s.KDF.derive(password, s.Salt))
	if err != nil {
		return errors.Wrap(err, "init cipher")
	}
	s.Ciphertext = aead.Seal(nil, s.Nonce, plain, o.AAD)

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	return writeAtomic(path, b, o.FilePerm, o.DirectoryPerm)
}

// ReadEncryptedJSON opens a file written by WriteEncryptedJSON. A missing
// file is reported as os.ErrNotExist.
func ReadEncryptedJSON[T any](path string, password []byte, opts ...Options) (T, error) {
	var out T
	o := firstOption(opts)

	b, err := os.ReadFile(path)
	if err != nil {
		return out, errors.Wrapf(err, "read %s", path)
	}
	var s sealed
	if err := json.Unmarshal(b, &s); err != nil {
		return out, errors.Wrapf(err, "decode envelope %s", path)
	}
	if s.Format != formatV1 {
		return out, errors.Newf("%s: unsupported format %d", path, s.Format)
	}
	if len(s.Nonce) != chacha20poly1305.NonceSizeX || s.KDF.KeyLen != chacha20poly1305.KeySize {
		return out, errors.Wrapf(ErrWrongPassword, "%s: malformed envelope", path)
	}

	aead, err := chacha20poly1305.NewX(s.KDF.derive(password, s.Salt))
	if err != nil {
		return out, errors.Wrap(err, "init cipher")
	}
	plain, err := aead.Open(nil, s.Nonce, s.Ciphertext, o.AAD)
	if err != nil {
		return out, ErrWrongPassword
	}
	if err := json.Unmarshal(plain, &out); err != nil {
		return out, errors.Wrap(err, "decode document")
	}
	return out, nil
}
