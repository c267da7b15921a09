package networks

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/securefile"
)

// Store is the on-disk shape of networks.json.
type Store struct {
	Schema   int                   `json:"schema"`
	Networks map[string]Descriptor `json:"networks"` // key = normalized name
}

func NewEmptyStore() Store {
	return Store{
		Schema:   constants.SchemaV1,
		Networks: map[string]Descriptor{},
	}
}

// Registry holds the networks a wallet may be switched to and persists them to networks.json.
type Registry struct {
	mu     sync.RWMutex
	path   string
	store  Store
	loaded bool
}

// NewRegistry opens the registry at path. An empty path keeps the registry in memory only.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, store: NewEmptyStore()}
}

// DefaultPath resolves networks.json under the user config dir.
func DefaultPath() (string, error) {
	return securefile.ResolvePath(constants.AppName, constants.NetworksFile)
}

func (r *Registry) Path() string { return r.path }

func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Registry) load(_ context.Context) error {
	r.loaded = true
	if r.path == "" {
		return nil
	}
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read networks file")
	}

	var s Store
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "unmarshal networks file")
	}

	norm := NewEmptyStore()
	if s.Schema != 0 {
		norm.Schema = s.Schema
	}
	for k, d := range s.Networks {
		if d.Name == "" {
			d.Name = k
		}
		// entries without a usable chain id cannot be switched to
		if err := d.Validate(); err != nil {
			continue
		}
		norm.Networks[d.Name] = d
	}
	r.store = norm
	return nil
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	return r.load(ctx)
}

func (r *Registry) persist(_ context.Context) error {
	if r.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(r.store, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal networks store")
	}
	return securefile.AtomicWriteFile(r.path, b, constants.FilePerm)
}

// Add registers a new network. Duplicates by chain id or name are rejected.
func (r *Registry) Add(ctx context.Context, d Descriptor) (Descriptor, error) {
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return Descriptor{}, err
	}

	if key, ok := r.findKeyByChainIDHex(d.ChainIDHex); ok {
		return Descriptor{}, errors.Newf("network already exists for chainIdHex %s (name: %s)", d.ChainIDHex, key)
	}
	if _, exists := r.store.Networks[d.Name]; exists {
		return Descriptor{}, errors.Newf("network name already exists: %s", d.Name)
	}

	d = enrich(d)
	r.store.Networks[d.Name] = d
	if err := r.persist(ctx); err != nil {
		return Descriptor{}, err
	}
	return d.Clone(), nil
}

func (r *Registry) RemoveByChainIDHex(ctx context.Context, chainIDHex string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	key, ok := r.findKeyByChainIDHex(chainIDHex)
	if !ok {
		return nil
	}
	delete(r.store.Networks, key)
	return r.persist(ctx)
}

// EnsureDefaults merges defaults into the registry:
// missing networks are added, blank fields of existing ones are filled, user values are kept.
func (r *Registry) EnsureDefaults(ctx context.Context, defaults []Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}

	changed := false
	byChain := map[string]string{}
	for key, d := range r.store.Networks {
		byChain[d.ChainIDHex] = key
	}

	for _, dn := range defaults {
		dn = dn.Clone()
		if err := dn.Validate(); err != nil {
			continue
		}

		key, ok := "", false
		if _, exists := r.store.Networks[dn.Name]; exists {
			key, ok = dn.Name, true
		} else {
			key, ok = byChain[dn.ChainIDHex]
		}
		if ok {
			cur := r.store.Networks[key]
			if cur.ExplorerURL == "" && dn.ExplorerURL != "" {
				cur.ExplorerURL = dn.ExplorerURL
				changed = true
			}
			if len(cur.RPCURLs) == 0 && len(dn.RPCURLs) > 0 {
				cur.RPCURLs = dn.RPCURLs
				changed = true
			}
			if cur.Currency.Symbol == "" && dn.Currency.Symbol != "" {
				cur.Currency = dn.Currency
				changed = true
			}
			r.store.Networks[key] = cur
			continue
		}

		r.store.Networks[dn.Name] = enrich(dn)
		byChain[dn.ChainIDHex] = dn.Name
		changed = true
	}

	if r.path != "" {
		if _, err := os.Stat(r.path); err != nil {
			changed = true
		}
	}
	if changed {
		return r.persist(ctx)
	}
	return nil
}

// List returns all networks sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.store.Networks))
	for _, d := range r.store.Networks {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) FindByChainIDHex(ctx context.Context, chainIDHex string) (Descriptor, bool, error) {
	want := NormalizeChainIDHex(chainIDHex)
	if want == "" {
		return Descriptor{}, false, errors.Newf("invalid chainIdHex %q", chainIDHex)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return Descriptor{}, false, err
	}
	key, ok := r.findKeyByChainIDHex(want)
	if !ok {
		return Descriptor{}, false, nil
	}
	return r.store.Networks[key].Clone(), true, nil
}

func (r *Registry) FindByName(ctx context.Context, name string) (Descriptor, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureLoaded(ctx); err != nil {
		return Descriptor{}, false, err
	}
	d, ok := r.store.Networks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Descriptor{}, false, nil
	}
	return d.Clone(), true, nil
}

func (r *Registry) findKeyByChainIDHex(chainIDHex string) (string, bool) {
	for k, d := range r.store.Networks {
		if SameChain(d.ChainIDHex, chainIDHex) {
			return k, true
		}
	}
	return "", false
}
