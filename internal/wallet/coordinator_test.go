package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0xAbC0000000000000000000000000000000000001"
	addrB = "0x00000000000000000000000000000000000000B2"
)

// fakeWallet is a scripted injected provider.
type fakeWallet struct {
	mu sync.Mutex

	accounts []string
	chain    string
	known    map[string]bool
	// lag is how many eth_chainId polls still report the old chain after a switch.
	lag     int
	pending string

	rejectAccounts bool
	rejectSwitch   bool
	sendErrs       []error
	balance        *big.Int
	// onSwitch runs once, outside the lock, when a switch request arrives.
	onSwitch func()

	calls  []string
	gas    []*hexutil.Uint64
	closed int
}

func newFakeWallet(chain string) *fakeWallet {
	return &fakeWallet{
		accounts: []string{addrA},
		chain:    chain,
		known:    map[string]bool{chain: true},
		balance:  big.NewInt(0),
	}
}

func (f *fakeWallet) Request(_ context.Context, method string, params []any, out any) error {
	if method == eip1193.MethodSwitchChain {
		f.mu.Lock()
		hook := f.onSwitch
		f.onSwitch = nil
		f.mu.Unlock()
		if hook != nil {
			hook()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)

	switch method {
	case eip1193.MethodRequestAccounts:
		if f.rejectAccounts {
			return eip1193.UserRejected()
		}
		return eip1193.SetResult(out, f.accounts)

	case eip1193.MethodChainID:
		if f.pending != "" {
			if f.lag > 0 {
				f.lag--
			} else {
				f.chain, f.pending = f.pending, ""
			}
		}
		return eip1193.SetResult(out, f.chain)

	case eip1193.MethodSwitchChain:
		if f.rejectSwitch {
			return eip1193.UserRejected()
		}
		req := params[0].(eip1193.SwitchChainParams)
		if !f.known[req.ChainID] {
			return eip1193.UnrecognizedChain(req.ChainID)
		}
		f.pending = req.ChainID
		return nil

	case eip1193.MethodAddChain:
		req := params[0].(networks.AddEthereumChainParameter)
		f.known[req.ChainID] = true
		return nil

	case eip1193.MethodGetBalance:
		return eip1193.SetResult(out, (*hexutil.Big)(f.balance))

	case eip1193.MethodSendTransaction:
		args := params[0].(eip1193.TransactionArgs)
		f.gas = append(f.gas, args.Gas)
		if len(f.sendErrs) > 0 {
			err := f.sendErrs[0]
			f.sendErrs = f.sendErrs[1:]
			if err != nil {
				return err
			}
		}
		return eip1193.SetResult(out, "0xfeed")
	}
	return eip1193.NewError(eip1193.CodeUnsupportedMethod, method)
}

func (f *fakeWallet) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeWallet) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeWallet) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeWallet) count(method string) int {
	n := 0
	for _, m := range f.methods() {
		if m == method {
			n++
		}
	}
	return n
}

var desktop = environment.Facts{
	InjectedProvider: true,
	UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0",
	ViewportWidth:    1440,
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) notify(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

type alerts struct{ msgs []string }

func (a *alerts) Alert(msg string) { a.msgs = append(a.msgs, msg) }

func newTestCoordinator(t *testing.T, w *fakeWallet) (*Coordinator, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewCoordinator(Options{
		Probe: environment.StaticProbe{Base: desktop},
		Strategies: []Strategy{&ExtensionStrategy{
			Provider: func(context.Context) (eip1193.Provider, error) { return w, nil },
		}},
		PaymentNetwork: networks.Piccadilly,
		SwitchTimeout:  300 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		Notify:         rec.notify,
	})
	return c, rec
}

func connected(t *testing.T, w *fakeWallet) (*Coordinator, *recorder) {
	t.Helper()
	c, rec := newTestCoordinator(t, w)
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	w.resetCalls()
	return c, rec
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name  string
		facts environment.Facts
		want  StrategyKind
	}{
		{"native bridge wins", environment.Facts{NativeBridge: true, UserAgent: "iPhone", InjectedProvider: true}, StrategyNative},
		{"mobile user agent", environment.Facts{UserAgent: "Mozilla/5.0 (Linux; Android 14)"}, StrategyWalletConnect},
		{"narrow viewport", environment.Facts{ViewportWidth: 390}, StrategyWalletConnect},
		{"mobile hint", environment.Facts{MobileHint: true}, StrategyWalletConnect},
		{"desktop", desktop, StrategyBrowserExtension},
		{"desktop without provider", environment.Facts{ViewportWidth: 1280}, StrategyBrowserExtension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectStrategy(tt.facts))
		})
	}
}

func TestConnectDisconnect(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	c, rec := newTestCoordinator(t, w)

	assert.Nil(t, c.ActiveWallet())
	got, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, common.HexToAddress(addrA).Hex(), got.Address)
	assert.Equal(t, StateConnected, c.State())
	require.NotNil(t, c.ActiveWallet())
	assert.NotEmpty(t, c.ActiveWallet().Address)

	require.NoError(t, c.Disconnect(context.Background()))
	assert.Nil(t, c.ActiveWallet())
	assert.Empty(t, c.AvailableWallets())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, w.closed)

	snaps := rec.all()
	require.Len(t, snaps, 2)
	assert.Equal(t, StateConnected, snaps[0].State)
	assert.Equal(t, StrategyBrowserExtension, snaps[0].Strategy)
	assert.Equal(t, StateDisconnected, snaps[1].State)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	c, rec := connected(t, w)

	require.NoError(t, c.Disconnect(context.Background()))
	once := c.Snapshot()
	require.NoError(t, c.Disconnect(context.Background()))
	assert.Equal(t, once, c.Snapshot())
	assert.Equal(t, 1, w.closed)
	assert.Len(t, rec.all(), 3)
}

func TestConnectListsAvailableWallets(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	w.accounts = []string{addrA, addrB, "not-an-address"}
	c, _ := connected(t, w)

	avail := c.AvailableWallets()
	require.Len(t, avail, 1)
	assert.Equal(t, common.HexToAddress(addrB).Hex(), avail[0].Address)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(w *fakeWallet) Options
		kind     ConnectErrorKind
		sentinel error
		alert    bool
	}{
		{
			name: "no injected provider",
			setup: func(*fakeWallet) Options {
				return Options{
					Probe:      environment.StaticProbe{Base: environment.Facts{ViewportWidth: 1280}},
					Strategies: []Strategy{&ExtensionStrategy{}},
				}
			},
			kind:     KindNoWalletAvailable,
			sentinel: ErrNoWalletAvailable,
			alert:    true,
		},
		{
			name: "user rejects account access",
			setup: func(w *fakeWallet) Options {
				w.rejectAccounts = true
				return Options{
					Probe: environment.StaticProbe{Base: desktop},
					Strategies: []Strategy{&ExtensionStrategy{
						Provider: func(context.Context) (eip1193.Provider, error) { return w, nil },
					}},
				}
			},
			kind:     KindUserRejected,
			sentinel: ErrUserRejected,
		},
		{
			name: "strategy not configured",
			setup: func(*fakeWallet) Options {
				return Options{Probe: environment.StaticProbe{Base: environment.Facts{NativeBridge: true}}}
			},
			kind:     KindNoWalletAvailable,
			sentinel: ErrNoWalletAvailable,
		},
		{
			name: "strategy panics",
			setup: func(*fakeWallet) Options {
				return Options{
					Probe: environment.StaticProbe{Base: desktop},
					Strategies: []Strategy{&ExtensionStrategy{
						Provider: func(context.Context) (eip1193.Provider, error) { panic("boom") },
					}},
				}
			},
			kind: KindFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWallet(networks.Piccadilly.ChainIDHex)
			opts := tt.setup(w)
			rec := &recorder{}
			al := &alerts{}
			opts.Notify = rec.notify
			for _, s := range opts.Strategies {
				if es, ok := s.(*ExtensionStrategy); ok {
					es.Alerts = al
				}
			}
			c := NewCoordinator(opts)

			got, err := c.Connect(context.Background())
			assert.Nil(t, got)
			var cerr *ConnectError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.kind, cerr.Kind)
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel))
			}
			if tt.alert {
				assert.Equal(t, []string{InstallWalletAlert}, al.msgs)
			}

			assert.Equal(t, StateDisconnected, c.State())
			assert.Nil(t, c.ActiveWallet())
			snaps := rec.all()
			require.Len(t, snaps, 1)
			assert.Equal(t, StateConnectFailed, snaps[0].State)
			assert.NotEmpty(t, snaps[0].Error)
		})
	}
}

// blockingStrategy parks Connect until released.
type blockingStrategy struct {
	entered chan struct{}
	release chan struct{}
	w       *fakeWallet
}

func (b *blockingStrategy) Kind() StrategyKind { return StrategyBrowserExtension }

func (b *blockingStrategy) Connect(ctx context.Context, _ environment.Facts) (*Connection, error) {
	close(b.entered)
	<-b.release
	return &Connection{Wallet: Wallet{Address: addrA}, Session: closerSession{b.w}}, nil
}

func TestConnectRejectsOverlappingAttempt(t *testing.T) {
	b := &blockingStrategy{entered: make(chan struct{}), release: make(chan struct{}), w: newFakeWallet("0x1")}
	rec := &recorder{}
	c := NewCoordinator(Options{
		Probe:      environment.StaticProbe{Base: desktop},
		Strategies: []Strategy{b},
		Notify:     rec.notify,
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		done <- err
	}()
	<-b.entered

	assert.Equal(t, StateConnecting, c.State())
	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectInProgress)

	// Disconnect during a connect leaves the attempt alone.
	require.NoError(t, c.Disconnect(context.Background()))
	assert.Equal(t, StateConnecting, c.State())

	close(b.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateConnected, c.State())

	snaps := rec.all()
	require.Len(t, snaps, 2)
	assert.Equal(t, StateConnecting, snaps[0].State)
	assert.Equal(t, StateConnected, snaps[1].State)
}

func TestReconnectClosesPreviousSession(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	c, _ := connected(t, w)

	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, w.closed)
}

func TestEnsureNetworkAlreadyOnTarget(t *testing.T) {
	// Leading zeros and case do not matter.
	w := newFakeWallet("0x03E158E4")
	c, _ := connected(t, w)

	ok, err := c.EnsureNetwork(context.Background(), networks.Piccadilly)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{eip1193.MethodChainID}, w.methods())
}

func TestEnsureNetworkSwitchesKnownChain(t *testing.T) {
	w := newFakeWallet(networks.ArbitrumOne.ChainIDHex)
	w.known[networks.Piccadilly.ChainIDHex] = true
	w.lag = 3
	c, _ := connected(t, w)

	ok, err := c.EnsureNetwork(context.Background(), networks.Piccadilly)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, w.count(eip1193.MethodSwitchChain))
	assert.Equal(t, 0, w.count(eip1193.MethodAddChain))
	// initial read, then polls until the lag runs out
	assert.Equal(t, 5, w.count(eip1193.MethodChainID))
}

func TestEnsureNetworkAddsUnknownChain(t *testing.T) {
	w := newFakeWallet(networks.ArbitrumOne.ChainIDHex)
	c, _ := connected(t, w)

	ok, err := c.EnsureNetwork(context.Background(), networks.Piccadilly)
	require.NoError(t, err)
	assert.True(t, ok)

	var order []string
	for _, m := range w.methods() {
		if m != eip1193.MethodChainID {
			order = append(order, m)
		}
	}
	assert.Equal(t, []string{eip1193.MethodSwitchChain, eip1193.MethodAddChain, eip1193.MethodSwitchChain}, order)
}

func TestEnsureNetworkTimesOut(t *testing.T) {
	w := newFakeWallet(networks.ArbitrumOne.ChainIDHex)
	w.known[networks.Piccadilly.ChainIDHex] = true
	w.lag = 1 << 20
	c, _ := connected(t, w)

	start := time.Now()
	ok, err := c.EnsureNetwork(context.Background(), networks.Piccadilly)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestEnsureNetworkErrors(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeWallet("0x1"))
	ok, err := c.EnsureNetwork(context.Background(), networks.Piccadilly)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotConnected)

	w := newFakeWallet(networks.ArbitrumOne.ChainIDHex)
	w.rejectSwitch = true
	c, _ = connected(t, w)
	ok, err = c.EnsureNetwork(context.Background(), networks.Piccadilly)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrUserRejected))
}

func TestSendTransactionNotConnected(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	c, _ := newTestCoordinator(t, w)

	_, err := c.SendTransaction(context.Background(), Tx{Value: big.NewInt(1)})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, w.methods())
}

func TestSendTransactionGasFallback(t *testing.T) {
	gasErr := eip1193.NewError(eip1193.CodeServerError, "failed to estimate gas: execution reverted")
	nodeRevert := &eip1193.ProviderError{Code: eip1193.CodeExecutionReverted, Message: "execution reverted"}
	metamaskRevert := &eip1193.ProviderError{
		Code:    eip1193.CodeInternal,
		Message: "Internal JSON-RPC error.",
		Data:    map[string]any{"code": 3, "message": "execution reverted"},
	}
	to := common.HexToAddress(addrB)

	tests := []struct {
		name     string
		gas      uint64
		errs     []error
		wantHash string
		sends    int
		check    func(t *testing.T, err error)
	}{
		{name: "first try succeeds", wantHash: "0xfeed", sends: 1},
		{name: "retry succeeds", errs: []error{gasErr}, wantHash: "0xfeed", sends: 2},
		{name: "node revert code 3", errs: []error{nodeRevert}, wantHash: "0xfeed", sends: 2},
		{name: "metamask nested revert", errs: []error{metamaskRevert}, wantHash: "0xfeed", sends: 2},
		{
			name:  "explicit gas is not retried",
			gas:   90_000,
			errs:  []error{nodeRevert},
			sends: 1,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "execution reverted")
				assert.False(t, errors.Is(err, ErrGasEstimationFailed))
			},
		},
		{
			name:  "retry fails gas again",
			errs:  []error{gasErr, gasErr},
			sends: 2,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrGasEstimationFailed))
				assert.Equal(t, gasErr.Error(), err.Error())
			},
		},
		{
			name:  "retry fails otherwise",
			errs:  []error{gasErr, eip1193.NewError(eip1193.CodeInternal, "nonce too low")},
			sends: 2,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "nonce too low")
				assert.False(t, errors.Is(err, ErrGasEstimationFailed))
			},
		},
		{
			name:  "rejection is not retried",
			errs:  []error{eip1193.UserRejected()},
			sends: 1,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrUserRejected))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWallet(networks.Piccadilly.ChainIDHex)
			w.sendErrs = tt.errs
			c, _ := connected(t, w)

			hash, err := c.SendTransaction(context.Background(), Tx{To: &to, Value: big.NewInt(5), Gas: tt.gas})
			if tt.check == nil {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				tt.check(t, err)
			}
			assert.Equal(t, tt.wantHash, hash)
			assert.Equal(t, tt.sends, w.count(eip1193.MethodSendTransaction))

			require.Len(t, w.gas, tt.sends)
			if tt.gas == 0 {
				assert.Nil(t, w.gas[0])
			} else {
				require.NotNil(t, w.gas[0])
				assert.EqualValues(t, tt.gas, *w.gas[0])
			}
			if tt.sends == 2 {
				require.NotNil(t, w.gas[1])
				assert.EqualValues(t, 250_000, *w.gas[1])
			}
		})
	}
}

func TestSendTransactionWrongNetwork(t *testing.T) {
	w := newFakeWallet(networks.ArbitrumOne.ChainIDHex)
	w.known[networks.Piccadilly.ChainIDHex] = true
	w.lag = 1 << 20
	c, _ := connected(t, w)

	_, err := c.SendTransaction(context.Background(), Tx{})
	assert.ErrorIs(t, err, ErrWrongNetwork)
	assert.Equal(t, 0, w.count(eip1193.MethodSendTransaction))
}

func TestSendTransactionSessionReplacedDuringSwitch(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, c *Coordinator)
	}{
		{name: "reconnect", change: func(t *testing.T, c *Coordinator) {
			_, err := c.Connect(context.Background())
			require.NoError(t, err)
		}},
		{name: "disconnect", change: func(t *testing.T, c *Coordinator) {
			require.NoError(t, c.Disconnect(context.Background()))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWallet(networks.ArbitrumOne.ChainIDHex)
			w.known[networks.Piccadilly.ChainIDHex] = true
			w.lag = 2
			c, _ := connected(t, w)
			w.onSwitch = func() { tt.change(t, c) }

			to := common.HexToAddress(addrB)
			hash, err := c.SendTransaction(context.Background(), Tx{To: &to})
			require.ErrorIs(t, err, ErrNotConnected)
			assert.Empty(t, hash)
			assert.Equal(t, 0, w.count(eip1193.MethodSendTransaction))
			assert.Equal(t, 1, w.closed)
		})
	}
}

func TestRefreshBalance(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	w.balance = big.NewInt(42)
	c, rec := connected(t, w)

	bal, err := c.RefreshBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Int64())
	require.NotNil(t, c.ActiveWallet().Balance)
	assert.Equal(t, int64(42), c.ActiveWallet().Balance.Int64())

	snaps := rec.all()
	require.NotNil(t, snaps[len(snaps)-1].Wallet)
	assert.Equal(t, int64(42), snaps[len(snaps)-1].Wallet.Balance.Int64())
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "0xAbC0...0001", FormatAddress(addrA))
	assert.Equal(t, "0x12", FormatAddress("0x12"))
}

// Desktop browser with an injected provider ends connected through the
// extension, and the profile label is the shortened address.
func TestDesktopExtensionScenario(t *testing.T) {
	w := newFakeWallet(networks.Piccadilly.ChainIDHex)
	c, rec := newTestCoordinator(t, w)

	got, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{eip1193.MethodRequestAccounts}, w.methods())

	snaps := rec.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, StrategyBrowserExtension, snaps[0].Strategy)
	require.NotNil(t, snaps[0].Wallet)
	assert.Equal(t, got.Address, snaps[0].Wallet.Address)
	assert.Equal(t, "0xabc0...0001", strings.ToLower(FormatAddress(snaps[0].Wallet.Address)))
}
