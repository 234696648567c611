package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "INKROOM"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	SendBuffer       int           `mapstructure:"send_buffer"`
	SlowPolicy       string        `mapstructure:"slow_policy"`
	DrawRateLimit    int           `mapstructure:"draw_rate_limit"`
	DrawRateInterval time.Duration `mapstructure:"draw_rate_interval"`

	MDNS        MDNS        `mapstructure:"mdns"`
	Store       Store       `mapstructure:"store"`
	Entitlement Entitlement `mapstructure:"entitlement"`
}

type MDNS struct {
	Enabled bool   `mapstructure:"enabled"`
	Service string `mapstructure:"service"`
}

type Store struct {
	Backend string `mapstructure:"backend"`
	Redis   Redis  `mapstructure:"redis"`
	S3      S3     `mapstructure:"s3"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type S3 struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Entitlement maps tier names to drawing limits; a negative limit means
// unlimited.
type Entitlement struct {
	Limits map[string]int `mapstructure:"limits"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "inkroom-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("slow_policy", "drop")
	v.SetDefault("draw_rate_limit", 0)
	v.SetDefault("draw_rate_interval", "1s")
	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.service", "_inkroom._tcp")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.region", "us-east-1")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.prefix", "drawings/")
	v.SetDefault("store.s3.access_key", "")
	v.SetDefault("store.s3.secret_key", "")
	v.SetDefault("entitlement.limits", map[string]any{"free": 5, "pro": 100, "studio": -1})
}

// Load reads config/config.<CONFIG_ENV>.yaml. A missing file is not an
// error; defaults and INKROOM_* variables still apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return LoadWith(v)
}

// LoadWith finishes a caller-prepared viper: defaults, env overrides, decode.
func LoadWith(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Str("store", cfg.Store.Backend).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Store.Backend {
	case "memory", "redis":
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
