package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ggonzalez94/routerdeploy/internal/chain"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/ggonzalez94/routerdeploy/internal/fees"
	"github.com/ggonzalez94/routerdeploy/internal/id"
	"github.com/ggonzalez94/routerdeploy/internal/registry"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ROUTERDEPLOY_"

type GlobalFlags struct {
	ConfigPath  string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	LogLevel    string

	// EnableCommands is a comma-separated command allowlist.
	EnableCommands string
}

type Settings struct {
	OutputMode    string
	SelectFields  []string
	ResultsOnly   bool
	Timeout       time.Duration
	LogLevel      string
	ArtifactsDir  string
	StorePath     string
	StoreLockPath string
	// RPCURLs and Fees are keyed by network id.
	RPCURLs   map[int64]string
	Fees      map[int64]fees.FeeConfig
	Networks  []registry.NetworkProfile
	Execution chain.Options

	// EnableCommands limits runnable command paths; empty allows all.
	EnableCommands []string

	// AllowedNetworks limits the networks deploy may target, as network
	// references resolved against the registry; empty allows all.
	AllowedNetworks []string
}

// FeesFor returns a copy of the fee config for a network. There is no
// fallback: a network without an explicit fee block is a config error.
func (s Settings) FeesFor(networkID int64) (fees.FeeConfig, error) {
	cfg, ok := s.Fees[networkID]
	if !ok {
		return fees.FeeConfig{}, clierr.Config(fmt.Sprintf("fees.%d", networkID), "no fee config for network; add a fees block to the config file")
	}
	return cfg.Clone(), nil
}

type feeBlock struct {
	Recipient    string           `yaml:"recipient"`
	RecipientEnv string           `yaml:"recipient_env"`
	BaseBps      int64            `yaml:"base_bps"`
	RatesBps     map[string]int64 `yaml:"rates_bps"`
}

type networkBlock struct {
	NetworkID          int64  `yaml:"network_id"`
	Name               string `yaml:"name"`
	Slug               string `yaml:"slug"`
	WrappedNativeToken string `yaml:"wrapped_native_token"`
	V2Factory          string `yaml:"v2_factory"`
	V3Factory          string `yaml:"v3_factory"`
	V2PairInitCodeHash string `yaml:"v2_pair_init_code_hash"`
	V3PoolInitCodeHash string `yaml:"v3_pool_init_code_hash"`
	RewardsDistributor string `yaml:"rewards_distributor"`
	ExternalToken      string `yaml:"external_token"`
	CanonicalPermit2   string `yaml:"canonical_permit2"`
	ReferenceToken     string `yaml:"reference_token"`
}

type fileConfig struct {
	Output       string `yaml:"output"`
	Timeout      string `yaml:"timeout"`
	LogLevel     string `yaml:"log_level"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	Store        struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	RPC             map[string]string   `yaml:"rpc"`
	RPCEnv          map[string]string   `yaml:"rpc_env"`
	Fees            map[string]feeBlock `yaml:"fees"`
	Networks        []networkBlock      `yaml:"networks"`
	EnableCommands  []string            `yaml:"enable_commands"`
	AllowedNetworks []string            `yaml:"allowed_networks"`
	Execution       struct {
		GasMultiplier      float64 `yaml:"gas_multiplier"`
		PollInterval       string  `yaml:"poll_interval"`
		ReceiptTimeout     string  `yaml:"receipt_timeout"`
		MaxFeeGwei         string  `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string  `yaml:"max_priority_fee_gwei"`
	} `yaml:"execution"`
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

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Minute
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:    "json",
		Timeout:       15 * time.Minute,
		LogLevel:      "info",
		ArtifactsDir:  "artifacts",
		StorePath:     filepath.Join(dataDir, "deployments.db"),
		StoreLockPath: filepath.Join(dataDir, "deployments.lock"),
		RPCURLs:       map[int64]string{},
		Fees:          map[int64]fees.FeeConfig{},
		Execution:     chain.DefaultOptions(),
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv(envPrefix + "CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "routerdeploy", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "routerdeploy"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return clierr.Wrap(clierr.CodeConfig, "read config", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return clierr.Wrap(clierr.CodeConfig, "parse config yaml", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return clierr.Config("timeout", err.Error())
		}
		settings.Timeout = d
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.ArtifactsDir != "" {
		settings.ArtifactsDir = cfg.ArtifactsDir
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}

	rpcKeys, err := networkKeys("rpc", mapKeys(cfg.RPC))
	if err != nil {
		return err
	}
	for _, k := range rpcKeys {
		settings.RPCURLs[k.networkID] = strings.TrimSpace(cfg.RPC[k.raw])
	}
	// rpc_env entries override literal rpc entries for the same network.
	envKeys, err := networkKeys("rpc_env", mapKeys(cfg.RPCEnv))
	if err != nil {
		return err
	}
	for _, k := range envKeys {
		if v := strings.TrimSpace(os.Getenv(cfg.RPCEnv[k.raw])); v != "" {
			settings.RPCURLs[k.networkID] = v
		}
	}

	feeKeys, err := networkKeys("fees", mapKeys(cfg.Fees))
	if err != nil {
		return err
	}
	for _, k := range feeKeys {
		fee, err := parseFeeBlock(k.networkID, cfg.Fees[k.raw])
		if err != nil {
			return err
		}
		settings.Fees[k.networkID] = fee
	}

	for i, block := range cfg.Networks {
		profile, err := parseNetworkBlock(i, block)
		if err != nil {
			return err
		}
		settings.Networks = append(settings.Networks, profile)
	}

	if len(cfg.EnableCommands) > 0 {
		settings.EnableCommands = cfg.EnableCommands
	}
	if len(cfg.AllowedNetworks) > 0 {
		settings.AllowedNetworks = cfg.AllowedNetworks
	}

	if cfg.Execution.GasMultiplier != 0 {
		if cfg.Execution.GasMultiplier < 1 {
			return clierr.Config("execution.gas_multiplier", "must be >= 1")
		}
		settings.Execution.GasMultiplier = cfg.Execution.GasMultiplier
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return clierr.Config("execution.poll_interval", err.Error())
		}
		settings.Execution.PollInterval = d
	}
	if cfg.Execution.ReceiptTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ReceiptTimeout)
		if err != nil {
			return clierr.Config("execution.receipt_timeout", err.Error())
		}
		settings.Execution.ReceiptTimeout = d
	}
	if cfg.Execution.MaxFeeGwei != "" {
		settings.Execution.MaxFeeGwei = cfg.Execution.MaxFeeGwei
	}
	if cfg.Execution.MaxPriorityFeeGwei != "" {
		settings.Execution.MaxPriorityFeeGwei = cfg.Execution.MaxPriorityFeeGwei
	}

	return nil
}

type resolvedKey struct {
	raw       string
	networkID int64
}

// networkKeys resolves section keys in sorted order and rejects two keys
// naming the same network, e.g. "8453" and "base".
func networkKeys(section string, keys []string) ([]resolvedKey, error) {
	sort.Strings(keys)
	seen := make(map[int64]string, len(keys))
	out := make([]resolvedKey, 0, len(keys))
	for _, key := range keys {
		networkID, err := networkKey(section, key)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[networkID]; ok {
			return nil, clierr.Config(section+"."+key, fmt.Sprintf("network %d already configured under key %q", networkID, prev))
		}
		seen[networkID] = key
		out = append(out, resolvedKey{raw: key, networkID: networkID})
	}
	return out, nil
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// networkKey resolves a map key such as "8453", "base" or "eip155:8453".
func networkKey(section, key string) (int64, error) {
	ref, err := id.ParseNetworkRef(key)
	if err != nil || ref.ChainID == 0 {
		return 0, clierr.Config(section+"."+key, "key must be a network id, CAIP-2 id or well-known network name")
	}
	return ref.ChainID, nil
}

func parseFeeBlock(networkID int64, block feeBlock) (fees.FeeConfig, error) {
	prefix := fmt.Sprintf("fees.%d", networkID)
	raw := block.Recipient
	if block.RecipientEnv != "" {
		raw = os.Getenv(block.RecipientEnv)
	}
	recipient, err := registry.ParseAddress(prefix+".recipient", raw)
	if err != nil {
		return fees.FeeConfig{}, err
	}
	out := fees.FeeConfig{
		Recipient: recipient,
		BaseBps:   block.BaseBps,
		RatesBps:  make(map[fees.TradeType]int64, len(block.RatesBps)),
	}
	tags := make([]string, 0, len(block.RatesBps))
	for tag := range block.RatesBps {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	rawTags := make(map[fees.TradeType]string, len(tags))
	for _, tag := range tags {
		tradeType := fees.TradeType(strings.ToLower(strings.TrimSpace(tag)))
		if !tradeType.Known() {
			return fees.FeeConfig{}, clierr.Config(prefix+".rates_bps."+tag, "unknown trade type")
		}
		if prev, ok := rawTags[tradeType]; ok {
			return fees.FeeConfig{}, clierr.Config(prefix+".rates_bps."+tag, fmt.Sprintf("keys %q and %q both name trade type %s", prev, tag, tradeType))
		}
		rawTags[tradeType] = tag
		out.RatesBps[tradeType] = block.RatesBps[tag]
	}
	return out, nil
}

func parseNetworkBlock(index int, block networkBlock) (registry.NetworkProfile, error) {
	prefix := fmt.Sprintf("networks[%d].", index)
	if block.NetworkID <= 0 {
		return registry.NetworkProfile{}, clierr.Config(prefix+"network_id", "must be a positive chain id")
	}
	p := registry.NetworkProfile{
		NetworkID: block.NetworkID,
		Name:      block.Name,
		Slug:      block.Slug,
	}
	var err error
	if p.WrappedNativeToken, err = registry.ParseAddress(prefix+"wrapped_native_token", block.WrappedNativeToken); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.V2Factory, err = registry.ParseAddress(prefix+"v2_factory", block.V2Factory); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.V3Factory, err = registry.ParseAddress(prefix+"v3_factory", block.V3Factory); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.V2PairInitCodeHash, err = registry.ParseHash(prefix+"v2_pair_init_code_hash", block.V2PairInitCodeHash); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.V3PoolInitCodeHash, err = registry.ParseHash(prefix+"v3_pool_init_code_hash", block.V3PoolInitCodeHash); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.RewardsDistributor, err = registry.ParseOptionalAddress(prefix+"rewards_distributor", block.RewardsDistributor); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.ExternalToken, err = registry.ParseOptionalAddress(prefix+"external_token", block.ExternalToken); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.CanonicalPermit2, err = registry.ParseOptionalAddress(prefix+"canonical_permit2", block.CanonicalPermit2); err != nil {
		return registry.NetworkProfile{}, err
	}
	if p.ReferenceToken, err = registry.ParseOptionalAddress(prefix+"reference_token", block.ReferenceToken); err != nil {
		return registry.NetworkProfile{}, err
	}
	return p, nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv(envPrefix + "OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "ARTIFACTS_DIR"); v != "" {
		settings.ArtifactsDir = v
	}
	if v := os.Getenv(envPrefix + "STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv(envPrefix + "STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv(envPrefix + "GAS_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			settings.Execution.GasMultiplier = f
		}
	}
	if v := os.Getenv(envPrefix + "MAX_FEE_GWEI"); v != "" {
		settings.Execution.MaxFeeGwei = v
	}
	if v := os.Getenv(envPrefix + "MAX_PRIORITY_FEE_GWEI"); v != "" {
		settings.Execution.MaxPriorityFeeGwei = v
	}
	if v := os.Getenv(envPrefix + "ENABLE_COMMANDS"); v != "" {
		settings.EnableCommands = splitCSV(v)
	}
	if v := os.Getenv(envPrefix + "ALLOWED_NETWORKS"); v != "" {
		settings.AllowedNetworks = splitCSV(v)
	}
	// ROUTERDEPLOY_RPC_<network id>=url
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix+"RPC_") || strings.TrimSpace(value) == "" {
			continue
		}
		networkID, err := strconv.ParseInt(strings.TrimPrefix(name, envPrefix+"RPC_"), 10, 64)
		if err != nil || networkID <= 0 {
			return clierr.Config(name, "expected "+envPrefix+"RPC_<network id>")
		}
		settings.RPCURLs[networkID] = strings.TrimSpace(value)
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return clierr.New(clierr.CodeUsage, "cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitCSV(flags.Select)
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitCSV(flags.EnableCommands)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --timeout", err)
		}
		settings.Timeout = d
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return clierr.New(clierr.CodeUsage, "output must be json or plain")
	}
	switch settings.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return clierr.Config("log_level", "must be one of debug|info|warn|error")
	}

	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if f := strings.TrimSpace(part); f != "" {
			out = append(out, f)
		}
	}
	return out
}
