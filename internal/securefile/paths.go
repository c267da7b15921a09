package securefile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
)

// EnvFolder maps FARM_WALLET_ENV to the config subfolder for that environment.
// Production uses the app folder itself.
func EnvFolder() (string, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(constants.EnvFolderEnv)))
	switch v {
	case "", "prod", "production":
		return "", nil
	case "local":
		return "local", nil
	case "dev", "develop", "development":
		return "develop", nil
	}
	return "", errors.Newf("invalid %s %q (allowed: local, develop or empty)", constants.EnvFolderEnv, v)
}

// configRoots lists the directories that may hold ~/.config, most specific first.
// Snap confinement rewrites HOME, so the real home goes first.
func configRoots() []string {
	var roots []string
	for _, env := range []string{"SNAP_REAL_HOME", "HOME"} {
		if h := os.Getenv(env); h != "" {
			roots = append(roots, filepath.Join(h, ".config"))
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		roots = append(roots, dir)
	}
	return roots
}

// ConfigPathCandidates returns where filename may live for app, in priority order.
func ConfigPathCandidates(app, filename string) ([]string, error) {
	if app == "" || filename == "" {
		return nil, errors.New("app and filename are required")
	}
	sub, err := EnvFolder()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, root := range configRoots() {
		p := filepath.Join(root, app, sub, filename)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("no home or user config directory")
	}
	return out, nil
}

// ResolvePath picks the first candidate that exists, else the first candidate.
func ResolvePath(app, filename string) (string, error) {
	cands, err := ConfigPathCandidates(app, filename)
	if err != nil {
		return "", err
	}
	for _, p := range cands {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return cands[0], nil
}
