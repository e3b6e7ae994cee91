package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	WalletEVM    = "evm"
	WalletSmart  = "smart"
	WalletSolana = "solana"
)

// DefaultProviders lists the action providers enabled when none are configured.
var DefaultProviders = []string{"erc20", "weth", "pyth", "x402", "swap"}

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	EnableActions  string
	Providers      string
	Timeout        string
	Retries        int
	NoCache        bool
	Network        string
	RPCURL         string
	Wallet         string
	KeySource      string
	PrivateKey     string
	SmartAccount   string
	LogLevel       string
	LogFormat      string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	EnableActions  []string
	Providers      []string
	Timeout        time.Duration
	Retries        int

	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	JournalPath     string
	JournalLockPath string

	NetworkID       string
	RPCURL          string
	WalletType      string
	KeySource       string
	PrivateKey      string
	SmartAccount    string
	SolanaKey       string
	GasMultiplier   float64
	FeeMultiplier   float64
	ReceiptTimeout  time.Duration
	PollInterval    time.Duration
	SwapAPIURL      string
	SwapAPIKey      string
	PythURL         string
	OnrampProjectID string
	LogLevel        string
	LogFormat       string
	LogPath         string
}

type fileConfig struct {
	Output    string   `yaml:"output"`
	Timeout   string   `yaml:"timeout"`
	Retries   *int     `yaml:"retries"`
	Providers []string `yaml:"providers"`
	Actions   []string `yaml:"enable_actions"`
	Cache     struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Journal struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Wallet struct {
		Type           string   `yaml:"type"`
		Network        string   `yaml:"network"`
		RPCURL         string   `yaml:"rpc_url"`
		KeySource      string   `yaml:"key_source"`
		SmartAccount   string   `yaml:"smart_account"`
		SolanaKeyEnv   string   `yaml:"solana_key_env"`
		GasMultiplier  *float64 `yaml:"gas_multiplier"`
		FeeMultiplier  *float64 `yaml:"fee_multiplier"`
		ReceiptTimeout string   `yaml:"receipt_timeout"`
		PollInterval   string   `yaml:"poll_interval"`
	} `yaml:"wallet"`
	Swap struct {
		APIURL    string `yaml:"api_url"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"swap"`
	Pyth struct {
		URL string `yaml:"url"`
	} `yaml:"pyth"`
	Onramp struct {
		ProjectID string `yaml:"project_id"`
	} `yaml:"onramp"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Path   string `yaml:"path"`
	} `yaml:"log"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	if settings.FeeMultiplier < 1 {
		settings.FeeMultiplier = 1
	}
	switch settings.WalletType {
	case WalletEVM, WalletSmart, WalletSolana:
	default:
		return Settings{}, fmt.Errorf("wallet must be %s|%s|%s", WalletEVM, WalletSmart, WalletSolana)
	}
	if settings.WalletType == WalletSmart && strings.TrimSpace(settings.SmartAccount) == "" {
		return Settings{}, fmt.Errorf("smart wallet requires a smart account address (--smart-account or AGENTKIT_SMART_ACCOUNT)")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		Providers:       append([]string(nil), DefaultProviders...),
		CacheEnabled:    true,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		JournalPath:     filepath.Join(cacheDir, "journal.db"),
		JournalLockPath: filepath.Join(cacheDir, "journal.lock"),
		NetworkID:       "base-sepolia",
		WalletType:      WalletEVM,
		KeySource:       "auto",
		GasMultiplier:   1.2,
		FeeMultiplier:   1,
		ReceiptTimeout:  2 * time.Minute,
		PollInterval:    2 * time.Second,
		SwapAPIURL:      "https://api.cdp.coinbase.com/platform",
		PythURL:         "https://hermes.pyth.network",
		LogLevel:        "warn",
		LogFormat:       "text",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "agentkit", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "agentkit")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if len(cfg.Providers) > 0 {
		settings.Providers = normalizeList(cfg.Providers)
	}
	if len(cfg.Actions) > 0 {
		settings.EnableActions = cfg.Actions
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	if cfg.Wallet.Type != "" {
		settings.WalletType = strings.ToLower(cfg.Wallet.Type)
	}
	if cfg.Wallet.Network != "" {
		settings.NetworkID = cfg.Wallet.Network
	}
	if cfg.Wallet.RPCURL != "" {
		settings.RPCURL = cfg.Wallet.RPCURL
	}
	if cfg.Wallet.KeySource != "" {
		settings.KeySource = cfg.Wallet.KeySource
	}
	if cfg.Wallet.SmartAccount != "" {
		settings.SmartAccount = cfg.Wallet.SmartAccount
	}
	if cfg.Wallet.SolanaKeyEnv != "" {
		settings.SolanaKey = os.Getenv(cfg.Wallet.SolanaKeyEnv)
	}
	if cfg.Wallet.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Wallet.GasMultiplier
	}
	if cfg.Wallet.FeeMultiplier != nil {
		settings.FeeMultiplier = *cfg.Wallet.FeeMultiplier
	}
	if cfg.Wallet.ReceiptTimeout != "" {
		d, err := time.ParseDuration(cfg.Wallet.ReceiptTimeout)
		if err != nil {
			return fmt.Errorf("config wallet.receipt_timeout: %w", err)
		}
		settings.ReceiptTimeout = d
	}
	if cfg.Wallet.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Wallet.PollInterval)
		if err != nil {
			return fmt.Errorf("config wallet.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Swap.APIURL != "" {
		settings.SwapAPIURL = cfg.Swap.APIURL
	}
	if cfg.Swap.APIKey != "" {
		settings.SwapAPIKey = cfg.Swap.APIKey
	}
	if cfg.Swap.APIKeyEnv != "" {
		settings.SwapAPIKey = os.Getenv(cfg.Swap.APIKeyEnv)
	}
	if cfg.Pyth.URL != "" {
		settings.PythURL = cfg.Pyth.URL
	}
	if cfg.Onramp.ProjectID != "" {
		settings.OnrampProjectID = cfg.Onramp.ProjectID
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Log.Path != "" {
		settings.LogPath = cfg.Log.Path
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("AGENTKIT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTKIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("AGENTKIT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("AGENTKIT_PROVIDERS"); v != "" {
		settings.Providers = normalizeList(SplitCSV(v))
	}
	if v := os.Getenv("AGENTKIT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("AGENTKIT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("AGENTKIT_JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv("AGENTKIT_NETWORK_ID"); v != "" {
		settings.NetworkID = v
	}
	if v := os.Getenv("AGENTKIT_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("AGENTKIT_WALLET"); v != "" {
		settings.WalletType = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTKIT_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("AGENTKIT_SMART_ACCOUNT"); v != "" {
		settings.SmartAccount = v
	}
	if v := os.Getenv("AGENTKIT_SOLANA_PRIVATE_KEY"); v != "" {
		settings.SolanaKey = v
	}
	if v := os.Getenv("AGENTKIT_SWAP_API_URL"); v != "" {
		settings.SwapAPIURL = v
	}
	if v := os.Getenv("AGENTKIT_SWAP_API_KEY"); v != "" {
		settings.SwapAPIKey = v
	}
	if v := os.Getenv("AGENTKIT_PYTH_URL"); v != "" {
		settings.PythURL = v
	}
	if v := os.Getenv("AGENTKIT_CDP_PROJECT_ID"); v != "" {
		settings.OnrampProjectID = v
	}
	if v := os.Getenv("AGENTKIT_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("AGENTKIT_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	if v := os.Getenv("AGENTKIT_LOG_PATH"); v != "" {
		settings.LogPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if fields := SplitCSV(flags.Select); len(fields) > 0 {
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := SplitCSV(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}
	if allowed := SplitCSV(flags.EnableActions); len(allowed) > 0 {
		settings.EnableActions = allowed
	}
	if providers := SplitCSV(flags.Providers); len(providers) > 0 {
		settings.Providers = normalizeList(providers)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.Network != "" {
		settings.NetworkID = flags.Network
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.Wallet != "" {
		settings.WalletType = strings.ToLower(flags.Wallet)
	}
	if flags.KeySource != "" {
		settings.KeySource = flags.KeySource
	}
	if flags.PrivateKey != "" {
		settings.PrivateKey = flags.PrivateKey
	}
	if flags.SmartAccount != "" {
		settings.SmartAccount = flags.SmartAccount
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = flags.LogFormat
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func SplitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.ToLower(strings.TrimSpace(item)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
