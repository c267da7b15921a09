package constants

import "time"

const (
	AppName         = "farm-wallet-client"
	NetworksFile    = "networks.json"
	StateFile       = "state.json"
	KeystoreDir     = "wallets"
	WalletFileExt   = ".wallet.json"
	SecretKeyEnv    = "SECRET_KEY"
	EnvFolderEnv    = "FARM_WALLET_ENV"
	ConfigEnvPrefix = "FARM_WALLET"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	NativeAddr = "0x0000000000000000000000000000000000000000"

	// AAD for keystore files (must match on decrypt).
	KeystoreAAD = "farmgoods:keystore:v1"

	// Gas limit used for the single retry after a failed estimate.
	FallbackGasLimit uint64 = 250_000

	DefaultSwitchTimeout = 15 * time.Second
	DefaultPollInterval  = 500 * time.Millisecond

	// Viewports narrower than this are treated as mobile.
	MobileViewportWidth = 768
)
