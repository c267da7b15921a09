package config

import (
	"bytes"
	_ "embed"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/joho/godotenv"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/viper"
)

//go:embed config.yaml
var embeddedConfigYAML []byte

type Server struct {
	Host           string   `mapstructure:"host"`
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	LoopbackOnly   bool     `mapstructure:"loopbackOnly"`
}

func (s Server) Addr() string { return net.JoinHostPort(s.Host, s.Port) }

// Environment seeds the facts used when no request headers say otherwise.
type Environment struct {
	NativeBridge     bool `mapstructure:"nativeBridge"`
	InjectedProvider bool `mapstructure:"injectedProvider"`
	Mobile           bool `mapstructure:"mobile"`
}

func (e Environment) Facts() environment.Facts {
	return environment.Facts{
		NativeBridge:     e.NativeBridge,
		InjectedProvider: e.InjectedProvider,
		MobileHint:       e.Mobile,
	}
}

type Wallet struct {
	PaymentNetwork   string        `mapstructure:"paymentNetwork"`
	SwitchTimeout    time.Duration `mapstructure:"switchTimeout"`
	PollInterval     time.Duration `mapstructure:"pollInterval"`
	FallbackGasLimit uint64        `mapstructure:"fallbackGasLimit"`
	ReceiptTimeout   time.Duration `mapstructure:"receiptTimeout"`
}

type Native struct {
	KeystoreDir string `mapstructure:"keystoreDir"`
}

type Extension struct {
	// ProviderURL is an EIP-1193 JSON-RPC endpoint standing in for an injected provider.
	ProviderURL string `mapstructure:"providerURL"`
}

type Relay struct {
	URL         string `mapstructure:"url"`
	ProjectID   string `mapstructure:"projectId"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Homepage    string `mapstructure:"homepage"`
}

// Network is an extra network registered on top of the builtins.
type Network struct {
	Name         string   `mapstructure:"name"`
	ChainIDHex   string   `mapstructure:"chainIdHex"`
	CurrencyName string   `mapstructure:"currencyName"`
	Symbol       string   `mapstructure:"symbol"`
	Decimals     int      `mapstructure:"decimals"`
	RPCURLs      []string `mapstructure:"rpcUrls"`
	Explorer     string   `mapstructure:"explorer"`
}

func (n Network) Descriptor() (networks.Descriptor, error) {
	d := networks.Descriptor{
		Name:       n.Name,
		ChainIDHex: n.ChainIDHex,
		Currency: networks.NativeCurrency{
			Name:     n.CurrencyName,
			Symbol:   n.Symbol,
			Decimals: n.Decimals,
		},
		RPCURLs:     n.RPCURLs,
		ExplorerURL: n.Explorer,
	}
	if d.Currency.Decimals == 0 {
		d.Currency.Decimals = 18
	}
	if err := d.Validate(); err != nil {
		return networks.Descriptor{}, errors.Wrapf(err, "network %q", n.Name)
	}
	return d, nil
}

type Config struct {
	Server      Server      `mapstructure:"server"`
	Environment Environment `mapstructure:"environment"`
	Wallet      Wallet      `mapstructure:"wallet"`
	Native      Native      `mapstructure:"native"`
	Extension   Extension   `mapstructure:"extension"`
	Relay       Relay       `mapstructure:"relay"`
	Networks    []Network   `mapstructure:"networks"`
}

// Descriptors converts the configured extra networks.
func (c *Config) Descriptors() ([]networks.Descriptor, error) {
	out := make([]networks.Descriptor, 0, len(c.Networks))
	for _, n := range c.Networks {
		d, err := n.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SearchPaths are the directories scanned for a config.yaml override.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", constants.AppName),
		filepath.Join(home, "config"),
		".",
	}
}

// Load reads .env, then the embedded defaults, a config.yaml from SearchPaths
// and FARM_WALLET_* environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to load .env", "error", err)
	}
	return LoadFrom(SearchPaths())
}

func LoadFrom(paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(embeddedConfigYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded config")
	}

	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "merge config file")
		}
	} else {
		log.Info("config file loaded", "path", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(constants.ConfigEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		c.Server.Port = "6137"
	}
	c.Wallet.PaymentNetwork = strings.ToLower(strings.TrimSpace(c.Wallet.PaymentNetwork))
	if c.Wallet.FallbackGasLimit == 0 {
		c.Wallet.FallbackGasLimit = constants.FallbackGasLimit
	}
	c.Extension.ProviderURL = strings.TrimSpace(c.Extension.ProviderURL)
}
