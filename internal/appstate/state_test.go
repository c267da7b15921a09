package appstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileDefaultsToMainnet(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultNetwork, s.Get().Network)

	d, err := s.Get().Descriptor()
	require.NoError(t, err)
	assert.Equal(t, networks.ArbitrumOne.ChainIDHex, d.ChainIDHex)
}

func TestSetNetworkPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path)
	require.NoError(t, err)

	d, err := s.SetNetwork(" Testnet ")
	require.NoError(t, err)
	assert.Equal(t, networks.Piccadilly.ChainIDHex, d.ChainIDHex)

	again, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "testnet", again.Get().Network)

	_, err = s.SetNetwork("moon")
	assert.Error(t, err)
	assert.Equal(t, "testnet", s.Get().Network)
}

func TestOpenHandlesBadContent(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err := Open(bad)
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"network":"moon"}`), 0o600))
	s, err := Open(unknown)
	require.NoError(t, err)
	assert.Equal(t, DefaultNetwork, s.Get().Network)
}
