package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xraph/cmdq"
)

// envPrefix is prepended to every environment variable, e.g. CMDQ_DB.
const envPrefix = "CMDQ"

// Settings holds process-level settings. Precedence, lowest first:
// defaults, config file, CMDQ_* environment variables, flags.
type Settings struct {
	DB         string `mapstructure:"db"`
	ConfigFile string `mapstructure:"config_file"`
	LogLevel   string `mapstructure:"log_level"`
	LogFormat  string `mapstructure:"log_format"`

	Concurrency       int           `mapstructure:"concurrency"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ExecTimeout       time.Duration `mapstructure:"exec_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	StaleJobThreshold time.Duration `mapstructure:"stale_job_threshold"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
}

// flagKeys maps flag names whose settings key differs from the flag name.
var flagKeys = map[string]string{
	"count": "concurrency",
}

func setDefaults(v *viper.Viper) {
	d := cmdq.DefaultConfig()
	v.SetDefault("db", "cmdq.db")
	v.SetDefault("config_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("exec_timeout", d.ExecTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("stale_job_threshold", d.StaleJobThreshold)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("rate_burst", d.RateBurst)
	v.SetDefault("metrics_addr", "")
}

// loadSettings resolves Settings from flags, the environment and an
// optional config file.
func loadSettings(flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return Settings{}, fmt.Errorf("bind flags: %w", bindErr)
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// EngineConfig converts the worker settings into a cmdq.Config.
func (s Settings) EngineConfig() cmdq.Config {
	return cmdq.Config{
		Concurrency:       s.Concurrency,
		PollInterval:      s.PollInterval,
		ExecTimeout:       s.ExecTimeout,
		ShutdownTimeout:   s.ShutdownTimeout,
		StaleJobThreshold: s.StaleJobThreshold,
		RateLimit:         s.RateLimit,
		RateBurst:         s.RateBurst,
	}
}
