// Package wallet owns the connection to the user's wallet: it picks a
// connection strategy for the environment, holds the single active session,
// keeps the wallet on the payment network and submits payment transactions.
package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

type Options struct {
	Probe      environment.Probe
	Strategies []Strategy

	PaymentNetwork   networks.Descriptor
	SwitchTimeout    time.Duration
	PollInterval     time.Duration
	FallbackGasLimit uint64

	Notify Notifier
}

type Coordinator struct {
	probe      environment.Probe
	strategies map[StrategyKind]Strategy
	notify     Notifier

	switchTimeout    time.Duration
	pollInterval     time.Duration
	fallbackGasLimit uint64

	// notifyMu orders notifications; always taken before mu.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	state     State
	strategy  StrategyKind
	wallet    *Wallet
	available []Wallet
	session   Session
	// epoch counts installed sessions.
	epoch   uint64
	payment networks.Descriptor
}

func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		probe:            opts.Probe,
		strategies:       make(map[StrategyKind]Strategy, len(opts.Strategies)),
		notify:           opts.Notify,
		switchTimeout:    opts.SwitchTimeout,
		pollInterval:     opts.PollInterval,
		fallbackGasLimit: opts.FallbackGasLimit,
		state:            StateDisconnected,
		payment:          opts.PaymentNetwork,
	}
	if c.probe == nil {
		c.probe = environment.StaticProbe{}
	}
	if c.switchTimeout <= 0 {
		c.switchTimeout = constants.DefaultSwitchTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = constants.DefaultPollInterval
	}
	if c.fallbackGasLimit == 0 {
		c.fallbackGasLimit = constants.FallbackGasLimit
	}
	if c.payment.ChainIDHex == "" {
		c.payment = networks.ArbitrumOne.Clone()
	}
	for _, s := range opts.Strategies {
		if s != nil {
			c.strategies[s.Kind()] = s
		}
	}
	return c
}

// Connect selects a strategy for the current environment and connects through it.
// Exactly one notification is emitted per call that is not rejected as overlapping.
func (c *Coordinator) Connect(ctx context.Context) (w *Wallet, err error) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.mu.Unlock()
		return nil, ErrConnectInProgress
	}
	old := c.session
	c.state = StateConnecting
	c.strategy = StrategyNone
	c.wallet, c.available, c.session = nil, nil, nil
	c.mu.Unlock()

	var kind StrategyKind
	defer func() {
		if err != nil {
			cerr := newConnectError(kind, err)
			log.Warn("wallet connect failed", "strategy", kind, "kind", cerr.Kind, "error", err)
			w, err = nil, cerr
		}
		c.finishConnect(kind, w, err)
	}()

	if old != nil {
		if cerr := old.Close(ctx); cerr != nil {
			log.Warn("closing previous wallet session", "error", cerr)
		}
	}

	facts := c.probe.Detect(ctx)
	kind = SelectStrategy(facts)
	strategy, ok := c.strategies[kind]
	if !ok {
		return nil, errors.Wrapf(ErrNoWalletAvailable, "no %s strategy configured", kind)
	}

	conn, err := runStrategy(ctx, strategy, facts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = conn.Session
	c.epoch++
	c.strategy = kind
	active := conn.Wallet.clone()
	c.wallet = &active
	c.available = cloneWallets(conn.Available)
	c.mu.Unlock()

	log.Info("wallet connected", "strategy", kind, "address", active.Address, "available", len(conn.Available))
	out := active.clone()
	return &out, nil
}

func runStrategy(ctx context.Context, s Strategy, facts environment.Facts) (conn *Connection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("%s strategy panicked: %v", s.Kind(), r)
		}
	}()
	conn, err = s.Connect(ctx, facts)
	if err == nil && (conn == nil || conn.Session == nil || conn.Wallet.Address == "") {
		if conn != nil && conn.Session != nil {
			_ = conn.Session.Close(ctx)
		}
		err = errors.Wrapf(ErrNoWalletAvailable, "%s strategy returned no wallet", s.Kind())
	}
	return conn, err
}

func (c *Coordinator) finishConnect(kind StrategyKind, w *Wallet, err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	var snap Snapshot
	if err != nil {
		c.state = StateDisconnected
		c.strategy = StrategyNone
		c.wallet, c.available, c.session = nil, nil, nil
		snap = Snapshot{State: StateConnectFailed, Strategy: kind, Available: []Wallet{}, Error: err.Error()}
	} else {
		c.state = StateConnected
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	c.emit(snap)
}

// Disconnect closes the session and clears the active wallet.
// While a connect is in flight it leaves state alone and only notifies.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.RLock()
	connecting := c.state == StateConnecting
	sess := c.session
	c.mu.RUnlock()

	var closeErr error
	if !connecting && sess != nil {
		closeErr = sess.Close(ctx)
		if closeErr != nil {
			log.Warn("closing wallet session", "error", closeErr)
		}
	}

	c.mu.Lock()
	if !connecting && c.session == sess {
		c.state = StateDisconnected
		c.strategy = StrategyNone
		c.wallet, c.available, c.session = nil, nil, nil
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if sess != nil && !connecting {
		log.Info("wallet disconnected")
	}
	c.emit(snap)
	return errors.Wrap(closeErr, "close wallet session")
}

func (c *Coordinator) ActiveWallet() *Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wallet == nil {
		return nil
	}
	w := c.wallet.clone()
	return &w
}

func (c *Coordinator) AvailableWallets() []Wallet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneWallets(c.available)
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Coordinator) PaymentNetwork() networks.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payment.Clone()
}

// SetPaymentNetwork changes the chain SendTransaction requires.
func (c *Coordinator) SetPaymentNetwork(d networks.Descriptor) {
	c.mu.Lock()
	c.payment = d.Clone()
	c.mu.Unlock()
	log.Info("payment network set", "network", d.Name, "chainId", d.ChainIDHex)
}

func (c *Coordinator) currentSession() (Session, *Wallet) {
	sess, w, _ := c.sessionAt()
	return sess, w
}

// sessionAt also returns the epoch of the session, so callers that block can
// detect that it was replaced in the meantime.
func (c *Coordinator) sessionAt() (Session, *Wallet, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil || c.wallet == nil {
		return nil, nil, 0
	}
	w := c.wallet.clone()
	return c.session, &w, c.epoch
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{State: c.state, Strategy: c.strategy, Available: cloneWallets(c.available)}
	if s.Available == nil {
		s.Available = []Wallet{}
	}
	if c.wallet != nil {
		w := c.wallet.clone()
		s.Wallet = &w
	}
	return s
}

func (c *Coordinator) emit(s Snapshot) {
	if c.notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("wallet state notifier panicked", "panic", r)
		}
	}()
	c.notify(s)
}

func cloneWallets(in []Wallet) []Wallet {
	if len(in) == 0 {
		return nil
	}
	out := make([]Wallet, len(in))
	for i, w := range in {
		out[i] = w.clone()
	}
	return out
}
