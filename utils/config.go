package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DEPLOYBOT_NETWORK_RPC.
const EnvPrefix = "DEPLOYBOT"

// Config is built once at startup and passed by value to every component.
type Config struct {
	Network  NetworkConfig  `mapstructure:"network"`
	KeysFile string         `mapstructure:"keys_file"`
	Contract ContractConfig `mapstructure:"contract"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Gas      GasConfig      `mapstructure:"gas"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Report   ReportConfig   `mapstructure:"report"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// NetworkConfig identifies the chain. The RPC endpoint must serve ChainID.
type NetworkConfig struct {
	Name     string `mapstructure:"name"`
	RPC      string `mapstructure:"rpc"`
	ChainID  uint64 `mapstructure:"chain_id"`
	Explorer string `mapstructure:"explorer"`
}

// ContractConfig selects how the artifact is produced. When both ABIFile and
// BinFile are set the precompiled files are used and solc is never invoked.
type ContractConfig struct {
	Solc       string `mapstructure:"solc"`
	EVMVersion string `mapstructure:"evm_version"`
	ABIFile    string `mapstructure:"abi_file"`
	BinFile    string `mapstructure:"bin_file"`
}

// ScheduleConfig holds every randomized range of a run. All bounds are inclusive.
type ScheduleConfig struct {
	Seed                uint64   `mapstructure:"seed"` // 0 draws a fresh seed
	DeployCountMin      int      `mapstructure:"deploy_count_min"`
	DeployCountMax      int      `mapstructure:"deploy_count_max"`
	IntervalHours       []int    `mapstructure:"interval_hours"`
	JitterSeconds       int      `mapstructure:"jitter_seconds"`
	WalletDelayMin      int      `mapstructure:"wallet_delay_min"`
	WalletDelayMax      int      `mapstructure:"wallet_delay_max"`
	PreUpdateDelayMin   int      `mapstructure:"pre_update_delay_min"`
	PreUpdateDelayMax   int      `mapstructure:"pre_update_delay_max"`
	FollowUpProbability float64  `mapstructure:"follow_up_probability"`
	Messages            []string `mapstructure:"messages"`
}

// GasConfig bounds the per-transaction gas limits, inclusive.
type GasConfig struct {
	DeployMin uint64 `mapstructure:"deploy_min"`
	DeployMax uint64 `mapstructure:"deploy_max"`
	UpdateMin uint64 `mapstructure:"update_min"`
	UpdateMax uint64 `mapstructure:"update_max"`
}

// RPCConfig paces and bounds chain calls. ConfirmTimeout covers waiting for a
// transaction to be mined, Timeout every other call.
type RPCConfig struct {
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second
	Burst          int           `mapstructure:"burst"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// ReportConfig sets where the run summary is written.
type ReportConfig struct {
	Path string   `mapstructure:"path"`
	S3   S3Config `mapstructure:"s3"`
}

// S3Config describes an optional S3-compatible bucket receiving a copy of the summary.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether an upload target is configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultMessages are the strings written by follow-up transactions.
var DefaultMessages = []string{
	"Hello, Web3!",
	"gm",
	"Building on-chain",
	"Testing smart contracts",
	"Decentralize everything",
	"Onchain and onward",
	"WAGMI",
	"Ship it",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network.name", "Sepolia")
	v.SetDefault("network.rpc", "https://ethereum-sepolia-rpc.publicnode.com")
	v.SetDefault("network.chain_id", 11155111)
	v.SetDefault("network.explorer", "https://sepolia.etherscan.io")

	v.SetDefault("keys_file", "private_keys.txt")

	v.SetDefault("contract.solc", "solc")
	v.SetDefault("contract.evm_version", "paris")
	v.SetDefault("contract.abi_file", "")
	v.SetDefault("contract.bin_file", "")

	v.SetDefault("schedule.seed", 0)
	v.SetDefault("schedule.deploy_count_min", 2)
	v.SetDefault("schedule.deploy_count_max", 4)
	v.SetDefault("schedule.interval_hours", []int{6, 12, 24})
	v.SetDefault("schedule.jitter_seconds", 600)
	v.SetDefault("schedule.wallet_delay_min", 5)
	v.SetDefault("schedule.wallet_delay_max", 30)
	v.SetDefault("schedule.pre_update_delay_min", 2)
	v.SetDefault("schedule.pre_update_delay_max", 5)
	v.SetDefault("schedule.follow_up_probability", 0.7)
	v.SetDefault("schedule.messages", DefaultMessages)

	v.SetDefault("gas.deploy_min", 2_500_000)
	v.SetDefault("gas.deploy_max", 3_000_000)
	v.SetDefault("gas.update_min", 80_000)
	v.SetDefault("gas.update_max", 120_000)

	v.SetDefault("rpc.rate_limit", 5)
	v.SetDefault("rpc.burst", 5)
	v.SetDefault("rpc.timeout", 30*time.Second)
	v.SetDefault("rpc.confirm_timeout", 5*time.Minute)

	v.SetDefault("report.path", "deployment-summary.json")
	v.SetDefault("report.s3.endpoint", "")
	v.SetDefault("report.s3.bucket", "")
	v.SetDefault("report.s3.prefix", "deploy-bot/")
	v.SetDefault("report.s3.access_key", "")
	v.SetDefault("report.s3.secret_key", "")
	v.SetDefault("report.s3.use_ssl", true)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "terminal")
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"keys":      "keys_file",
	"report":    "report.path",
	"seed":      "schedule.seed",
	"log-level": "log.level",
	"rpc":       "network.rpc",
}

// LoadConfig resolves the configuration. Priority: flags, environment,
// config file, defaults. cfgFile and flags are both optional.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate rejects configurations the scheduler cannot honor.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Network.RPC == "" {
		return invalid("network.rpc is empty")
	}
	if c.Network.ChainID == 0 {
		return invalid("network.chain_id is zero")
	}
	if c.KeysFile == "" {
		return invalid("keys_file is empty")
	}
	if c.Report.Path == "" {
		return invalid("report.path is empty")
	}

	s := c.Schedule
	if s.DeployCountMin < 1 || s.DeployCountMax < s.DeployCountMin {
		return invalid("deploy count range [%d,%d]", s.DeployCountMin, s.DeployCountMax)
	}
	if len(s.IntervalHours) == 0 {
		return invalid("schedule.interval_hours is empty")
	}
	if s.JitterSeconds < 0 {
		return invalid("schedule.jitter_seconds is negative")
	}
	for _, h := range s.IntervalHours {
		if h*3600 <= s.JitterSeconds {
			return invalid("interval %dh does not exceed jitter %ds", h, s.JitterSeconds)
		}
	}
	if s.WalletDelayMin < 0 || s.WalletDelayMax < s.WalletDelayMin {
		return invalid("wallet delay range [%d,%d]", s.WalletDelayMin, s.WalletDelayMax)
	}
	if s.PreUpdateDelayMin < 0 || s.PreUpdateDelayMax < s.PreUpdateDelayMin {
		return invalid("pre-update delay range [%d,%d]", s.PreUpdateDelayMin, s.PreUpdateDelayMax)
	}
	if s.FollowUpProbability < 0 || s.FollowUpProbability > 1 {
		return invalid("follow_up_probability %v outside [0,1]", s.FollowUpProbability)
	}
	if len(s.Messages) == 0 {
		return invalid("schedule.messages is empty")
	}

	g := c.Gas
	if g.DeployMin == 0 || g.DeployMax < g.DeployMin {
		return invalid("deploy gas range [%d,%d]", g.DeployMin, g.DeployMax)
	}
	if g.UpdateMin == 0 || g.UpdateMax < g.UpdateMin {
		return invalid("update gas range [%d,%d]", g.UpdateMin, g.UpdateMax)
	}

	if c.RPC.RateLimit <= 0 || c.RPC.Burst < 1 {
		return invalid("rpc rate limit %v burst %d", c.RPC.RateLimit, c.RPC.Burst)
	}
	if c.RPC.ConfirmTimeout <= 0 {
		return invalid("rpc.confirm_timeout must be positive")
	}
	return nil
}
