package config

import (
	"fmt"
	"math/big"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vultisig/txobserver/executor"
	"github.com/vultisig/txobserver/internal/api"
	"github.com/vultisig/txobserver/internal/logging"
	"github.com/vultisig/txobserver/internal/metrics"
	"github.com/vultisig/txobserver/internal/reconcile"
	"github.com/vultisig/txobserver/internal/status"
	"github.com/vultisig/txobserver/observer"
)

type Config struct {
	LogFormat logging.LogFormat `mapstructure:"log_format" json:"log_format,omitempty" envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string            `mapstructure:"log_level" json:"log_level,omitempty" envconfig:"LOG_LEVEL" default:"info"`
	RPC       RPCConfig         `mapstructure:"rpc" json:"rpc"`
	Server    api.Config        `mapstructure:"server" json:"server"`
	Database  DatabaseConfig    `mapstructure:"database" json:"database,omitempty"`
	Redis     status.Config     `mapstructure:"redis" json:"redis,omitempty"`
	Observer  observer.Config   `mapstructure:"observer" json:"observer"`
	Executor  executor.Config   `mapstructure:"executor" json:"executor"`
	Reconcile reconcile.Config  `mapstructure:"reconcile" json:"reconcile"`
	Metrics   metrics.Config    `mapstructure:"metrics" json:"metrics"`
}

type RPCConfig struct {
	URL          string        `mapstructure:"url" json:"url" envconfig:"RPC_URL" required:"true"`
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval,omitempty" envconfig:"RPC_POLL_INTERVAL" default:"2s"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" json:"dsn,omitempty" envconfig:"DATABASE_DSN"`
}

func (c *Config) validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	err := c.LogFormat.UnmarshalText([]byte(c.LogFormat))
	if err != nil {
		return fmt.Errorf("c.LogFormat.UnmarshalText: %w", err)
	}
	_, err = logging.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("logging.ParseLevel: %w", err)
	}
	return nil
}

// Level is the parsed LogLevel. Call it on a validated config only.
func (c *Config) Level() logrus.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// bigIntHook decodes decimal or 0x-prefixed numbers, quoted or not, into *big.Int.
func bigIntHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != bigIntType {
		return data, nil
	}
	n, ok := new(big.Int).SetString(fmt.Sprint(data), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %v", data)
	}
	return n, nil
}

func GetConfigure() (*Config, error) {
	configName := os.Getenv("TXOBSERVER_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	return ReadConfig(configName)
}

func ReadConfig(configName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("log_format", string(logging.FormatText))
	v.SetDefault("log_level", logrus.InfoLevel.String())
	v.SetDefault("rpc.poll_interval", "2s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("observer.required_confirmations", observer.DefaultRequiredConfirmations)
	v.SetDefault("reconcile.interval", "1m")
	v.SetDefault("reconcile.iteration_timeout", "5m")
	v.SetDefault("reconcile.stale_after", "10m")
	v.SetDefault("reconcile.mark_lost_after", "30m")
	v.SetDefault("reconcile.concurrency", 10)
	v.SetDefault("reconcile.required_confirmations", observer.DefaultRequiredConfirmations)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 8088)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("fail to reading config file, %w", err)
	}
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		bigIntHook,
	)))
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadEnvConfig reads every section from flat environment variables
// (RPC_URL, DATABASE_DSN, REDIS_URI, REQUIRED_CONFIRMATIONS, ...).
func ReadEnvConfig() (*Config, error) {
	var cfg Config
	sections := []any{
		&cfg.RPC,
		&cfg.Server,
		&cfg.Database,
		&cfg.Redis,
		&cfg.Observer,
		&cfg.Executor,
		&cfg.Reconcile,
		&cfg.Metrics,
	}
	for _, section := range sections {
		err := envconfig.Process("", section)
		if err != nil {
			return nil, fmt.Errorf("envconfig.Process: %w", err)
		}
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = string(logging.FormatText)
	}
	cfg.LogFormat = logging.LogFormat(format)
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	// envconfig allocates pointer-to-struct fields even when the variable is unset
	if cfg.Executor.GasPrice != nil && cfg.Executor.GasPrice.Sign() == 0 {
		cfg.Executor.GasPrice = nil
	}

	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
