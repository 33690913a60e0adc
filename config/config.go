// Package config loads the faucet configuration from an optional config file,
// an optional .env file, the environment and command line flags.
package config

import (
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/faucetd/faucet/captcha"
)

const (
	KeyModeMnemonic = "mnemonic"
	KeyModePEM      = "pem"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full faucet configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Faucet     FaucetConfig     `mapstructure:"faucet"`
	API        APIConfig        `mapstructure:"api"`
	NativeAuth NativeAuthConfig `mapstructure:"nativeAuth"`
	Security   SecurityConfig   `mapstructure:"security"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type FaucetConfig struct {
	PrivateKeyMode        string `mapstructure:"privateKeyMode"`
	Mnemonic              string `mapstructure:"mnemonic"`
	MnemonicAddressIndex  uint32 `mapstructure:"mnemonicAddressIndex"`
	PemPath               string `mapstructure:"pemPath"`
	PemIndex              int    `mapstructure:"pemIndex"`
	GatewayURL            string `mapstructure:"gatewayUrl"`
	Amount                string `mapstructure:"amount"`
	Token                 string `mapstructure:"token"`
	TokenAmount           string `mapstructure:"tokenAmount"`
	CooldownSameAddressIn int    `mapstructure:"cooldownSameAddressInSec"`
	RecaptchaBypass       bool   `mapstructure:"recaptchaBypass"`
	RecaptchaSecret       string `mapstructure:"recaptchaSecret"`
	RecaptchaVerifyURL    string `mapstructure:"recaptchaVerifyUrl"`
	ReplayMode            string `mapstructure:"replayMode"`
	ExternalCallTimeoutMs int    `mapstructure:"externalCallTimeoutMs"`
}

type APIConfig struct {
	URL string `mapstructure:"url"`
}

type NativeAuthConfig struct {
	MaxExpirySeconds int64    `mapstructure:"maxExpirySeconds"`
	AcceptedOrigins  []string `mapstructure:"acceptedOrigins"`
	AcceptAnyOrigin  bool     `mapstructure:"acceptAnyOrigin"`
}

type SecurityConfig struct {
	JWTSecret string   `mapstructure:"jwtSecret"`
	Admins    []string `mapstructure:"admins"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	PoolSize int    `mapstructure:"poolSize"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"server.port":                     3001,
	"faucet.privateKeyMode":           KeyModeMnemonic,
	"faucet.mnemonic":                 "",
	"faucet.mnemonicAddressIndex":     0,
	"faucet.pemPath":                  "",
	"faucet.pemIndex":                 0,
	"faucet.gatewayUrl":               "https://devnet-gateway.multiversx.com",
	"faucet.amount":                   "1000000000000000000",
	"faucet.token":                    "",
	"faucet.tokenAmount":              "",
	"faucet.cooldownSameAddressInSec": 3600,
	"faucet.recaptchaBypass":          false,
	"faucet.recaptchaSecret":          "",
	"faucet.recaptchaVerifyUrl":       captcha.DefaultVerifyURL,
	"faucet.replayMode":               "claim",
	"faucet.externalCallTimeoutMs":    10000,
	"api.url":                         "https://devnet-api.multiversx.com",
	"nativeAuth.maxExpirySeconds":     86400,
	"nativeAuth.acceptedOrigins":      []string{},
	"nativeAuth.acceptAnyOrigin":      true,
	"security.jwtSecret":              "",
	"security.admins":                 []string{},
	"redis.enabled":                   true,
	"redis.host":                      "127.0.0.1",
	"redis.port":                      6379,
	"redis.password":                  "",
	"redis.poolSize":                  100,
	"log.level":                       "info",
	"log.format":                      "json",
}

// Load reads the configuration. Precedence, highest first: flags,
// environment (dots become underscores, e.g. FAUCET_AMOUNT), .env file,
// config file, defaults.
func Load(args []string) (*Config, error) {
	flags := flag.NewFlagSet("faucet", flag.ContinueOnError)
	configFile := flags.StringP("config", "c", "", "Path to a config file (json, yaml or toml)")
	envFile := flags.String("env-file", ".env", "Path to an optional .env file")
	flags.Int("port", defaults["server.port"].(int), "HTTP listen port")
	flags.String("log-level", defaults["log.level"].(string), "Log level")
	if err := flags.Parse(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse flags")
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "failed to load %s", *envFile)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("server.port", flags.Lookup("port")); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return nil, errors.WithStack(err)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", *configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FaucetEnabled reports whether an operator key source is configured.
func (c *Config) FaucetEnabled() bool {
	switch c.Faucet.PrivateKeyMode {
	case KeyModeMnemonic:
		return strings.TrimSpace(c.Faucet.Mnemonic) != ""
	case KeyModePEM:
		return c.Faucet.PemPath != ""
	}
	return false
}

// Cooldown returns the replay cooldown.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Faucet.CooldownSameAddressIn) * time.Second
}

// CallTimeout returns the timeout of each external call.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Faucet.ExternalCallTimeoutMs) * time.Millisecond
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Faucet.PrivateKeyMode {
	case KeyModeMnemonic, KeyModePEM:
	default:
		return errors.Wrapf(ErrInvalidConfig, "faucet.privateKeyMode must be %q or %q, got %q",
			KeyModeMnemonic, KeyModePEM, c.Faucet.PrivateKeyMode)
	}
	switch c.Faucet.ReplayMode {
	case "claim", "checkCommit":
	default:
		return errors.Wrapf(ErrInvalidConfig, "faucet.replayMode must be claim or checkCommit, got %q", c.Faucet.ReplayMode)
	}
	if c.Faucet.CooldownSameAddressIn <= 0 {
		return errors.Wrap(ErrInvalidConfig, "faucet.cooldownSameAddressInSec must be positive")
	}
	if c.Faucet.ExternalCallTimeoutMs <= 0 {
		return errors.Wrap(ErrInvalidConfig, "faucet.externalCallTimeoutMs must be positive")
	}
	if _, ok := new(big.Int).SetString(c.Faucet.Amount, 10); !ok {
		return errors.Wrapf(ErrInvalidConfig, "faucet.amount %q is not an integer", c.Faucet.Amount)
	}
	if c.Faucet.Token != "" {
		if _, ok := new(big.Int).SetString(c.Faucet.TokenAmount, 10); !ok {
			return errors.Wrapf(ErrInvalidConfig, "faucet.tokenAmount %q is not an integer", c.Faucet.TokenAmount)
		}
	}
	if c.FaucetEnabled() {
		if c.Faucet.GatewayURL == "" {
			return errors.Wrap(ErrInvalidConfig, "faucet.gatewayUrl is required")
		}
		if !c.Faucet.RecaptchaBypass && c.Faucet.RecaptchaSecret == "" {
			return errors.Wrap(ErrInvalidConfig, "faucet.recaptchaSecret is required unless faucet.recaptchaBypass is set")
		}
	}
	if c.API.URL == "" {
		return errors.Wrap(ErrInvalidConfig, "api.url is required")
	}
	if !c.NativeAuth.AcceptAnyOrigin && len(c.NativeAuth.AcceptedOrigins) == 0 {
		return errors.Wrap(ErrInvalidConfig, "nativeAuth.acceptedOrigins is empty and nativeAuth.acceptAnyOrigin is off")
	}
	return nil
}
