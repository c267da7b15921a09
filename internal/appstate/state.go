// Package appstate persists the user's preferences in state.json.
package appstate

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/farmgoods-io/farm-wallet-client/internal/securefile"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

const DefaultNetwork = "mainnet"

type State struct {
	// Network is mainnet, testnet or local.
	Network string `json:"network"`
}

func Default() State { return State{Network: DefaultNetwork} }

// Descriptor resolves the selected network.
func (s State) Descriptor() (networks.Descriptor, error) {
	return networks.ForEnvironment(s.Network)
}

type Store struct {
	mu    sync.Mutex
	path  string
	state State
}

func DefaultPath() (string, error) {
	return securefile.ResolvePath(constants.AppName, constants.StateFile)
}

// Open loads path, falling back to defaults when the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, state: Default()}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read state file")
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, errors.Wrap(err, "decode state file")
	}
	st.Network = strings.ToLower(strings.TrimSpace(st.Network))
	if st.Network == "" {
		st.Network = DefaultNetwork
	}
	if _, err := st.Descriptor(); err != nil {
		log.Warn("ignoring unsupported network in state file", "network", st.Network, "path", path)
		st.Network = DefaultNetwork
	}
	s.state = st
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetNetwork validates and persists the selected network.
func (s *Store) SetNetwork(name string) (networks.Descriptor, error) {
	st := State{Network: strings.ToLower(strings.TrimSpace(name))}
	d, err := st.Descriptor()
	if err != nil {
		return networks.Descriptor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(st); err != nil {
		return networks.Descriptor{}, err
	}
	s.state = st
	log.Info("saved state", "network", st.Network, "path", s.path)
	return d, nil
}

func (s *Store) saveLocked(st State) error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	return securefile.AtomicWriteFile(s.path, b, constants.FilePerm)
}
