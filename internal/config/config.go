package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "VOICEGATE"

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	// Secret signs the browser session cookie.
	Secret string `mapstructure:"secret"`

	Log    LogConfig    `mapstructure:"log"`
	Signal SignalConfig `mapstructure:"signal"`
	Auth   AuthConfig   `mapstructure:"auth"`
	SFU    SFUConfig    `mapstructure:"sfu"`
	ICE    ICEConfig    `mapstructure:"ice"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Guild  GuildConfig  `mapstructure:"guild"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type SignalConfig struct {
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateInterval   time.Duration `mapstructure:"rate_interval"`
	OfferTimeout   time.Duration `mapstructure:"offer_timeout"`
	BroadcastScope string        `mapstructure:"broadcast_scope"`
	Backpressure   string        `mapstructure:"backpressure"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	Secret       string        `mapstructure:"secret"`
	SecretBase64 bool          `mapstructure:"secret_base64"`
	Issuer       string        `mapstructure:"issuer"`
	Leeway       time.Duration `mapstructure:"leeway"`
}

type SFUConfig struct {
	// Driver is "kurento" or "embedded".
	Driver         string        `mapstructure:"driver"`
	KMSURL         string        `mapstructure:"kms_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

type ICEConfig struct {
	Servers []ICEServer `mapstructure:"servers"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

type GuildConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("signal.read_limit", 32768)
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.pong_wait", "60s")
	v.SetDefault("signal.write_timeout", "5s")
	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("signal.offer_timeout", "10s")
	v.SetDefault("signal.broadcast_scope", "room")
	v.SetDefault("signal.backpressure", "kick")
	v.SetDefault("signal.allowed_origins", []string{})

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.secret_base64", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", "30s")

	v.SetDefault("sfu.driver", "embedded")
	v.SetDefault("sfu.kms_url", "ws://localhost:8888/kurento")
	v.SetDefault("sfu.request_timeout", "5s")

	v.SetDefault("ice.servers", []map[string]any{{"urls": []string{"stun:stun.l.google.com:19302"}}})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("redis.prefix", "voicegate")

	v.SetDefault("guild.url", "")
	v.SetDefault("guild.token", "")
	v.SetDefault("guild.timeout", "3s")
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
// VOICEGATE_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("sfu", cfg.SFU.Driver).
		Str("broadcast_scope", cfg.Signal.BroadcastScope).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.SFU.Driver {
	case "kurento":
		if c.SFU.KMSURL == "" {
			errs = append(errs, errors.New("sfu.kms_url is required for the kurento driver"))
		}
	case "embedded":
	default:
		errs = append(errs, fmt.Errorf("sfu.driver %q: want kurento or embedded", c.SFU.Driver))
	}
	switch c.Signal.BroadcastScope {
	case "room", "global":
	default:
		errs = append(errs, fmt.Errorf("signal.broadcast_scope %q: want room or global", c.Signal.BroadcastScope))
	}
	switch c.Signal.Backpressure {
	case "kick", "drop", "none":
	default:
		errs = append(errs, fmt.Errorf("signal.backpressure %q: want kick, drop or none", c.Signal.Backpressure))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
}
