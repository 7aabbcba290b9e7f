package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MMS"

type Config struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	DatabaseURL  string        `mapstructure:"database_url"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	StoreBackend string        `mapstructure:"store_backend"`
	JSONRPC      JSONRPCConfig `mapstructure:"jsonrpc"`
	Redis        RedisConfig   `mapstructure:"redis"`
	Jitsi        JitsiConfig   `mapstructure:"jitsi"`
	Session      SessionConfig `mapstructure:"session"`
	WS           WSConfig      `mapstructure:"ws"`
	Log          LogConfig     `mapstructure:"log"`
}

// JSONRPCConfig addresses an Odoo style record server.
type JSONRPCConfig struct {
	URL       string `mapstructure:"url"`
	SessionID string `mapstructure:"session_id"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type JitsiConfig struct {
	AppID      string        `mapstructure:"app_id"`
	KeyID      string        `mapstructure:"kid"`
	PrivateKey string        `mapstructure:"private_key"`
	Domain     string        `mapstructure:"domain"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// Enabled reports whether room tokens can be issued.
func (j JitsiConfig) Enabled() bool { return j.AppID != "" }

type SessionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	HangupDelay  time.Duration `mapstructure:"hangup_delay"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type WSConfig struct {
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads file, or config/config.<MMS_CONFIG_ENV>.yaml when file is
// empty, then applies MMS_ prefixed environment overrides. A missing
// default file is not an error; a missing explicit file is.
func Load(file string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	explicit := file != ""
	if !explicit {
		env := os.Getenv(envPrefix + "_CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("store_backend", "postgres")
	v.SetDefault("jsonrpc.url", "")
	v.SetDefault("jsonrpc.session_id", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "mms.notifications")
	v.SetDefault("jitsi.app_id", "")
	v.SetDefault("jitsi.kid", "")
	v.SetDefault("jitsi.private_key", "")
	v.SetDefault("jitsi.domain", "8x8.vc")
	v.SetDefault("jitsi.token_ttl", "24h")
	v.SetDefault("session.poll_interval", "10s")
	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("session.settle_delay", "100ms")
	v.SetDefault("session.hangup_delay", "1500ms")
	v.SetDefault("session.max_retries", 0)
	v.SetDefault("ws.read_limit", 32768)
	v.SetDefault("ws.ping_period", "54s")
	v.SetDefault("ws.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%s_JWT_SECRET is required", envPrefix)
	}
	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%s_DATABASE_URL is required for the postgres store", envPrefix)
		}
	case "jsonrpc":
		if c.JSONRPC.URL == "" {
			return fmt.Errorf("%s_JSONRPC_URL is required for the jsonrpc store", envPrefix)
		}
	case "memory":
	default:
		return fmt.Errorf("%s_STORE_BACKEND must be one of postgres|jsonrpc|memory", envPrefix)
	}
	if c.Jitsi.Enabled() && (c.Jitsi.KeyID == "" || c.Jitsi.PrivateKey == "") {
		return fmt.Errorf("%s_JITSI_KID and %s_JITSI_PRIVATE_KEY are required with an app id", envPrefix, envPrefix)
	}
	if c.Session.MaxRetries < 0 {
		return fmt.Errorf("%s_SESSION_MAX_RETRIES must not be negative", envPrefix)
	}
	return nil
}
