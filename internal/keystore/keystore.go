// Package keystore is the native wallet store: encrypted key files in a
// wallets directory, or a single key taken from SECRET_KEY.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/securefile"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

var ErrNoPassword = errors.New("keystore: password required")

// Key is one stored account.
type Key struct {
	Version    int    `json:"version"`
	AddressHex string `json:"address"`
	PrivKeyHex string `json:"priv_key_hex"`
	Label      string `json:"label,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"` // RFC3339

	source string
}

func (k *Key) Address() common.Address {
	return common.HexToAddress(k.AddressHex)
}

// Source is the file the key was loaded from, or "env".
func (k *Key) Source() string { return k.source }

func (k *Key) privateKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(k.PrivKeyHex), "0x"), "0X"))
	if err != nil {
		return nil, errors.Wrap(err, "decode private key")
	}
	return key, nil
}

func (k *Key) SignHash(digest32 []byte) ([]byte, error) {
	if len(digest32) != 32 {
		return nil, errors.Newf("digest must be 32 bytes, got %d", len(digest32))
	}
	key, err := k.privateKey()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest32, key)
}

// SignTx signs tx for chainID with the latest signer the chain supports.
func (k *Key) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	key, err := k.privateKey()
	if err != nil {
		return nil, err
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, errors.Wrap(err, "sign tx")
	}
	return signed, nil
}

func NewRandomKey(label string) (*Key, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate key")
	}
	return keyFromECDSA(key, label), nil
}

// FromPrivateKeyHex builds a key from a hex secret, with or without 0x.
func FromPrivateKeyHex(secret, label string) (*Key, error) {
	secret = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(secret), "0x"), "0X")
	key, err := crypto.HexToECDSA(secret)
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return keyFromECDSA(key, label), nil
}

func keyFromECDSA(key *ecdsa.PrivateKey, label string) *Key {
	return &Key{
		Version:    constants.SchemaV1,
		AddressHex: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: fmt.Sprintf("%x", crypto.FromECDSA(key)),
		Label:      label,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Store reads and writes key files under Dir.
type Store struct {
	Dir string
	Opt securefile.Options

	// Getenv is os.Getenv unless overridden in tests.
	Getenv func(string) string
}

// DefaultDir is the wallets directory under the user config dir.
func DefaultDir() (string, error) {
	return securefile.ResolvePath(constants.AppName, constants.KeystoreDir)
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Store{
		Dir: dir,
		Opt: securefile.Options{AAD: []byte(constants.KeystoreAAD)},
	}, nil
}

func (s *Store) getenv(k string) string {
	if s.Getenv != nil {
		return s.Getenv(k)
	}
	return os.Getenv(k)
}

// List returns the accounts the native bridge offers, first one preferred.
// A SECRET_KEY in the environment wins over the wallets directory.
func (s *Store) List(ctx context.Context, password []byte) ([]*Key, error) {
	if secret := strings.TrimSpace(s.getenv(constants.SecretKeyEnv)); secret != "" {
		k, err := FromPrivateKeyHex(secret, "env")
		if err != nil {
			return nil, errors.Wrap(err, "load wallet from SECRET_KEY")
		}
		k.source = "env"
		return []*Key{k}, nil
	}

	paths, err := s.files()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	if len(password) == 0 {
		return nil, ErrNoPassword
	}

	var (
		keys    []*Key
		lastErr error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k, err := securefile.ReadEncryptedJSON[Key](p, password, s.Opt)
		if err != nil {
			log.Warn("skipping unreadable wallet file", "path", p, "error", err)
			lastErr = err
			continue
		}
		k.source = p
		keys = append(keys, &k)
	}
	if len(keys) == 0 && lastErr != nil {
		return nil, errors.Wrap(lastErr, "no wallet file could be opened")
	}
	return keys, nil
}

func (s *Store) files() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read wallets dir %s", s.Dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), constants.WalletFileExt) {
			continue
		}
		out = append(out, filepath.Join(s.Dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Create generates a new key and writes it encrypted with password.
func (s *Store) Create(password []byte, label string) (*Key, error) {
	k, err := NewRandomKey(label)
	if err != nil {
		return nil, err
	}
	return k, s.Save(password, k)
}

// Import stores an existing secret.
func (s *Store) Import(password []byte, secret, label string) (*Key, error) {
	k, err := FromPrivateKeyHex(secret, label)
	if err != nil {
		return nil, err
	}
	return k, s.Save(password, k)
}

func (s *Store) Save(password []byte, k *Key) error {
	if len(password) == 0 {
		return ErrNoPassword
	}
	name := strings.ToLower(k.Address().Hex()) + constants.WalletFileExt
	path := filepath.Join(s.Dir, name)
	if err := securefile.WriteEncryptedJSON(path, *k, password, s.Opt); err != nil {
		return errors.Wrapf(err, "write wallet %s", path)
	}
	k.source = path
	log.Info("wallet saved", "address", k.Address().Hex(), "path", path)
	return nil
}
