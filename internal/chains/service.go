// Package chains keeps one go-ethereum client per network and tracks which
// network the local signer is currently on.
package chains

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
)

var ErrUnknownNetwork = errors.New("network not registered")

const DefaultDialTimeout = 10 * time.Second

type Config struct {
	Registry       *networks.Registry
	DefaultNetwork networks.Descriptor
	DialTimeout    time.Duration
}

type activeChain struct {
	network networks.Descriptor
}

type Service struct {
	cfg    Config
	active atomic.Pointer[activeChain]

	mu      sync.Mutex
	clients map[string]*ethclient.Client // key = chainIdHex
}

// NewService starts on cfg.DefaultNetwork. No client is dialed until one is needed.
func NewService(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("chains: registry is nil")
	}
	def := cfg.DefaultNetwork
	if err := def.Validate(); err != nil {
		return nil, errors.Wrap(err, "chains: default network")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	s := &Service{
		cfg:     cfg,
		clients: make(map[string]*ethclient.Client),
	}
	s.active.Store(&activeChain{network: def})
	return s, nil
}

// ActiveNetwork is the network the signer is currently pointed at.
func (s *Service) ActiveNetwork() networks.Descriptor {
	return s.active.Load().network.Clone()
}

// SwitchChain makes the registered network with chainIDHex active.
func (s *Service) SwitchChain(ctx context.Context, chainIDHex string) (networks.Descriptor, error) {
	current := s.active.Load().network
	if networks.SameChain(current.ChainIDHex, chainIDHex) {
		return current.Clone(), nil
	}

	d, found, err := s.cfg.Registry.FindByChainIDHex(ctx, chainIDHex)
	if err != nil {
		return networks.Descriptor{}, err
	}
	if !found {
		return networks.Descriptor{}, errors.Wrapf(ErrUnknownNetwork, "chain %s", chainIDHex)
	}
	s.active.Store(&activeChain{network: d})
	log.Info("switching chain", "chain", d.ChainIDHex, "network", d.Name)
	return d.Clone(), nil
}

// ActiveClient returns the client for the active network.
func (s *Service) ActiveClient(ctx context.Context) (*ethclient.Client, networks.Descriptor, error) {
	d := s.ActiveNetwork()
	c, err := s.Client(ctx, d)
	return c, d, err
}

// Client returns (and caches) a client for d, trying its RPC URLs in order.
func (s *Service) Client(ctx context.Context, d networks.Descriptor) (*ethclient.Client, error) {
	key := networks.NormalizeChainIDHex(d.ChainIDHex)
	if key == "" {
		return nil, errors.Newf("chains: invalid chain id %q", d.ChainIDHex)
	}

	s.mu.Lock()
	if existing := s.clients[key]; existing != nil {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	// dial outside the lock
	dialed, err := s.dial(ctx, d)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.clients[key]; existing != nil {
		dialed.Close()
		return existing, nil
	}
	s.clients[key] = dialed
	return dialed, nil
}

func (s *Service) dial(ctx context.Context, d networks.Descriptor) (*ethclient.Client, error) {
	if len(d.RPCURLs) == 0 {
		return nil, errors.Newf("network %q has no RPCs configured", d.Name)
	}

	var lastErr error
	for _, url := range d.RPCURLs {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		c, err := s.dialOne(ctx, d, url)
		if err == nil {
			return c, nil
		}
		log.Warn("rpc unavailable, trying next", "network", d.Name, "url", url, "error", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Wrapf(lastErr, "dial network %s", d.Name)
}

func (s *Service) dialOne(ctx context.Context, d networks.Descriptor, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to blockchain at %s", url)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = s.cfg.DialTimeout / 20
	cfg.MaxDelayBeforeRetrying = s.cfg.DialTimeout / 4

	var got uint64
	_, err = retry.Retry(dialCtx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			id, err := c.ChainID(ctx)
			if err != nil {
				return nil, err
			}
			got = id.Uint64()
			return nil, nil
		},
		nil, // always retry
		"get chain id from "+url)
	if err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "chain id from %s", url)
	}
	if got != d.ChainID {
		c.Close()
		return nil, errors.Newf("rpc %s serves chain %d, want %d", url, got, d.ChainID)
	}
	return c, nil
}

// Close closes all cached clients.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.clients {
		c.Close()
		delete(s.clients, key)
	}
}
