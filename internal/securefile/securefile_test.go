package securefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secret struct {
	Key  string `json:"key"`
	Note string `json:"note"`
}

var fastKDF = KDF{Time: 1, MemoryKiB: 1024, Threads: 1, KeyLen: 32}

func TestEncryptedJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "secret.json")
	opt := Options{KDF: fastKDF, AAD: []byte("test:aad")}

	require.NoError(t, WriteEncryptedJSON(path, secret{Key: "abc", Note: "hi"}, []byte("pw"), opt))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abc")

	got, err := ReadEncryptedJSON[secret](path, []byte("pw"), opt)
	require.NoError(t, err)
	assert.Equal(t, secret{Key: "abc", Note: "hi"}, got)
}

func TestReadEncryptedJSONRejectsWrongPasswordAndAAD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, WriteEncryptedJSON(path, secret{Key: "k"}, []byte("right"), Options{KDF: fastKDF, AAD: []byte("a")}))

	_, err := ReadEncryptedJSON[secret](path, []byte("wrong"), Options{AAD: []byte("a")})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = ReadEncryptedJSON[secret](path, []byte("right"), Options{AAD: []byte("b")})
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestReadEncryptedJSONMissingFile(t *testing.T) {
	_, err := ReadEncryptedJSON[secret](filepath.Join(t.TempDir(), "nope.json"), []byte("pw"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAtomicWriteFileReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.json")
	require.NoError(t, AtomicWriteFile(path, []byte("one"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("two"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))
	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestConfigPathCandidatesUsesEnvFolder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg"))
	t.Setenv("FARM_WALLET_ENV", "develop")

	paths, err := ConfigPathCandidates("app", "networks.json")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, filepath.Join(home, ".config", "app", "develop", "networks.json"), paths[0])

	t.Setenv("FARM_WALLET_ENV", "staging")
	_, err = ConfigPathCandidates("app", "networks.json")
	assert.Error(t, err)
}

func TestReadEncryptedJSONUsesStoredKDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, WriteEncryptedJSON(path, secret{Key: "k"}, []byte("pw"), Options{KDF: fastKDF}))

	// reading with different write-side parameters still works
	got, err := ReadEncryptedJSON[secret](path, []byte("pw"), Options{KDF: DefaultKDF})
	require.NoError(t, err)
	assert.Equal(t, "k", got.Key)
}

func TestAtomicWriteFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "f.json")
	require.NoError(t, AtomicWriteFile(path, []byte("{}"), 0o600))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}
