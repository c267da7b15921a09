package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	clientconfig "github.com/farmgoods-io/farm-wallet-client/cmd/farm-wallet-client/config"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	devChainHex = "0x539"
	devAccount  = "0x00000000000000000000000000000000000000aa"
	devKeyHex   = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

// isolate points every config path at a fresh home directory.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv(constants.EnvFolderEnv, "")
	t.Setenv(constants.SecretKeyEnv, "")
}

// devRPC is a minimal JSON-RPC node serving chain 0x539 and one account.
func devRPC(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any
		switch req.Method {
		case "eth_chainId":
			result = devChainHex
		case "eth_requestAccounts", "eth_accounts":
			result = []string{devAccount}
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, rpcURL string) *clientconfig.Config {
	t.Helper()
	cfg, err := clientconfig.LoadFrom([]string{t.TempDir()})
	require.NoError(t, err)
	cfg.Networks = []clientconfig.Network{{
		Name:         "devnet",
		ChainIDHex:   devChainHex,
		CurrencyName: "Ether",
		Symbol:       "ETH",
		RPCURLs:      []string{rpcURL},
	}}
	return cfg
}

func factsCommand(ctx context.Context, set map[string]string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().BoolVar(&connectFlags.native, "native", false, "")
	cmd.Flags().BoolVar(&connectFlags.injected, "injected", false, "")
	cmd.Flags().BoolVar(&connectFlags.mobile, "mobile", false, "")
	for k, v := range set {
		_ = cmd.Flags().Set(k, v)
	}
	cmd.SetContext(ctx)
	return cmd
}

func TestNewAppPaymentNetwork(t *testing.T) {
	tests := []struct {
		name    string
		network string
		want    string
		wantErr bool
	}{
		{name: "state default", network: "", want: "0xa4b1"},
		{name: "registry name", network: "devnet", want: devChainHex},
		{name: "environment alias", network: "testnet", want: "0x3e158e4"},
		{name: "unknown", network: "nowhere", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg := testConfig(t, "http://127.0.0.1:1")
			cfg.Wallet.PaymentNetwork = tt.network

			a, err := newApp(context.Background(), cfg, appOptions{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer a.Close(context.Background())

			assert.Equal(t, tt.want, a.wallet.PaymentNetwork().ChainIDHex)
			assert.Equal(t, wallet.StateDisconnected, a.wallet.State())

			_, found, err := a.registry.FindByName(context.Background(), "devnet")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestConnectWalletNative(t *testing.T) {
	isolate(t)
	t.Setenv(constants.SecretKeyEnv, devKeyHex)
	rpc := devRPC(t)

	cfg := testConfig(t, rpc.URL)
	cfg.Wallet.PaymentNetwork = "devnet"
	a, err := newApp(context.Background(), cfg, appOptions{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	cmd := factsCommand(context.Background(), map[string]string{"native": "true"})
	w, err := connectWallet(cmd, a, true)
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(devKeyHex)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), w.Address)
	assert.Equal(t, wallet.StrategyNative, a.wallet.Snapshot().Strategy)

	ev, ok := a.hub.Last()
	require.True(t, ok)
	assert.True(t, ev.Button.ShowProfile)
}

func TestConnectWalletExtension(t *testing.T) {
	isolate(t)
	rpc := devRPC(t)

	cfg := testConfig(t, rpc.URL)
	cfg.Wallet.PaymentNetwork = "devnet"
	cfg.Extension.ProviderURL = rpc.URL
	a, err := newApp(context.Background(), cfg, appOptions{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	cmd := factsCommand(context.Background(), map[string]string{"injected": "true"})
	w, err := connectWallet(cmd, a, true)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(devAccount, w.Address))
	assert.Equal(t, wallet.StrategyBrowserExtension, a.wallet.Snapshot().Strategy)

	// a disconnect keeps the shared dial for the next connect
	require.NoError(t, a.wallet.Disconnect(context.Background()))
	_, err = a.wallet.Connect(environment.WithFacts(context.Background(), environment.Facts{InjectedProvider: true}))
	require.NoError(t, err)
}

func TestConnectWalletExtensionMissing(t *testing.T) {
	isolate(t)
	a, err := newApp(context.Background(), testConfig(t, "http://127.0.0.1:1"), appOptions{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, err = a.extensionProvider(context.Background())
	require.ErrorIs(t, err, errNoExtension)

	cmd := factsCommand(context.Background(), map[string]string{"injected": "true"})
	_, err = connectWallet(cmd, a, false)
	require.ErrorIs(t, err, wallet.ErrNoWalletAvailable)
}

func TestPaymentChainProvider(t *testing.T) {
	isolate(t)
	rpc := devRPC(t)

	cfg := testConfig(t, rpc.URL)
	cfg.Wallet.PaymentNetwork = "devnet"
	a, err := newApp(context.Background(), cfg, appOptions{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	p := paymentChainProvider{chains: a.chains, network: a.wallet.PaymentNetwork}
	var id string
	require.NoError(t, p.Request(context.Background(), "eth_chainId", nil, &id))
	assert.Equal(t, devChainHex, id)
}

func TestCommandFactsOnlyOverridesChangedFlags(t *testing.T) {
	base := environment.Facts{InjectedProvider: true, UserAgent: "cli"}

	got := commandFacts(factsCommand(context.Background(), nil), base)
	assert.Equal(t, base, got)

	got = commandFacts(factsCommand(context.Background(), map[string]string{"mobile": "true", "injected": "false"}), base)
	assert.True(t, got.MobileHint)
	assert.False(t, got.InjectedProvider)
	assert.Equal(t, "cli", got.UserAgent)
}
