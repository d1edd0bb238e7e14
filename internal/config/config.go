package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/0gfoundation/0g-nonce-gate/internal/address"
)

type Config struct {
	Redis   RedisConfig
	Server  ServerConfig
	Runtime RuntimeConfig
	Queue   QueueConfig
	Auth    AuthConfig
	Issuer  IssuerConfig
	Faucet  FaucetConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RuntimeConfig struct {
	LamportsPerByte uint64 `mapstructure:"lamports_per_byte"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
}

type QueueConfig struct {
	PopTimeoutSec int64 `mapstructure:"pop_timeout_sec"`
}

type AuthConfig struct {
	MaxFutureSec int64 `mapstructure:"max_future_sec"`
}

// IssuerConfig configures the authorization issuer. The issuer is disabled
// when neither SigningKey nor KeyFile is set.
type IssuerConfig struct {
	SigningKey      string `mapstructure:"signing_key"`
	KeyFile         string `mapstructure:"key_file"`
	ProjectID       string `mapstructure:"project_id"`
	Mint            string `mapstructure:"mint"`
	BusinessProject string `mapstructure:"business_project"`
	ServiceBase     string `mapstructure:"service_base"`
	MaxAmount       uint64 `mapstructure:"max_amount"`
}

func (c IssuerConfig) Enabled() bool { return c.SigningKey != "" || c.KeyFile != "" }

type FaucetConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Lamports uint64 `mapstructure:"lamports"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("runtime.lamports_per_byte", 6960)
	v.SetDefault("runtime.max_attempts", 3)
	v.SetDefault("queue.pop_timeout_sec", 5)
	v.SetDefault("auth.max_future_sec", 300)
	v.SetDefault("faucet.lamports", 1_000_000_000)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":                "REDIS_ADDR",
		"redis.password":            "REDIS_PASSWORD",
		"server.port":               "PORT",
		"runtime.lamports_per_byte": "LAMPORTS_PER_BYTE",
		"runtime.max_attempts":      "RUNTIME_MAX_ATTEMPTS",
		"queue.pop_timeout_sec":     "QUEUE_POP_TIMEOUT_SEC",
		"auth.max_future_sec":       "AUTH_MAX_FUTURE_SEC",
		"issuer.signing_key":        "ISSUER_SIGNING_KEY",
		"issuer.key_file":           "ISSUER_KEY_FILE",
		"issuer.project_id":         "ISSUER_PROJECT",
		"issuer.mint":               "ISSUER_MINT",
		"issuer.business_project":   "ISSUER_BUSINESS_PROJECT",
		"issuer.service_base":       "ISSUER_SERVICE_BASE",
		"issuer.max_amount":         "ISSUER_MAX_AMOUNT",
		"faucet.enabled":            "FAUCET_ENABLED",
		"faucet.lamports":           "FAUCET_LAMPORTS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("required config missing: REDIS_ADDR")
	}
	if c.Runtime.LamportsPerByte == 0 {
		return fmt.Errorf("LAMPORTS_PER_BYTE must be positive")
	}
	if c.Runtime.MaxAttempts < 1 {
		return fmt.Errorf("RUNTIME_MAX_ATTEMPTS must be at least 1")
	}
	if c.Queue.PopTimeoutSec < 1 {
		return fmt.Errorf("QUEUE_POP_TIMEOUT_SEC must be at least 1")
	}
	if !c.Issuer.Enabled() {
		return nil
	}

	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Issuer.ProjectID, "ISSUER_PROJECT"},
		{c.Issuer.Mint, "ISSUER_MINT"},
		{c.Issuer.BusinessProject, "ISSUER_BUSINESS_PROJECT"},
		{c.Issuer.ServiceBase, "ISSUER_SERVICE_BASE"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
		if _, err := address.Parse(r.val); err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
	}
	if c.Issuer.MaxAmount == 0 {
		return fmt.Errorf("required config missing: ISSUER_MAX_AMOUNT")
	}
	return nil
}
