package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrNoWallets = errors.New("watch.wallets is empty")

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	DataAPI    DataAPIConfig    `mapstructure:"data_api"`
	ClobStream ClobStreamConfig `mapstructure:"clob_stream"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	PortfolioReport string `mapstructure:"portfolio_report"`
	FeedStatus      string `mapstructure:"feed_status"`
	// PositionSync is an optional fixed-cadence full sync on top of the
	// sampled refresh done by the poller. Empty disables it.
	PositionSync string `mapstructure:"position_sync"`
}

type DataAPIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ActivityLimit int           `mapstructure:"activity_limit"`
}

type ClobStreamConfig struct {
	URL               string        `mapstructure:"url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	ReadLimit         int64         `mapstructure:"read_limit"`
}

type WatchConfig struct {
	Wallets            []string      `mapstructure:"wallets"`
	TooOld             time.Duration `mapstructure:"too_old"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	PositionSampleRate float64       `mapstructure:"position_sample_rate"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.portfolio_report", "@every 5m")
	v.SetDefault("cron.feed_status", "@every 1m")
	v.SetDefault("cron.position_sync", "")
	v.SetDefault("data_api.base_url", "https://data-api.polymarket.com")
	v.SetDefault("data_api.timeout", "10s")
	v.SetDefault("data_api.activity_limit", 100)
	v.SetDefault("clob_stream.url", "")
	v.SetDefault("clob_stream.heartbeat_interval", "10s")
	v.SetDefault("clob_stream.reconnect_delay", "5s")
	v.SetDefault("clob_stream.read_limit", 2<<20)
	// AutomaticEnv only sees keys viper already knows about.
	v.SetDefault("watch.wallets", []string{})
	v.SetDefault("watch.too_old", "24h")
	v.SetDefault("watch.poll_interval", "200ms")
	v.SetDefault("watch.position_sample_rate", 0.2)
	v.SetDefault("watch.max_concurrency", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "mirror:trades")
	v.SetDefault("redis.max_len", 10000)
	v.SetDefault("auth.jwt_secret", "")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate normalizes the watched wallet list in place. A process without
// wallets has nothing to mirror and must not start.
func (c *Config) Validate() error {
	c.Watch.Wallets = NormalizeWallets(c.Watch.Wallets)
	if len(c.Watch.Wallets) == 0 {
		return ErrNoWallets
	}
	if c.Watch.PositionSampleRate < 0 {
		c.Watch.PositionSampleRate = 0
	}
	if c.Watch.PositionSampleRate > 1 {
		c.Watch.PositionSampleRate = 1
	}
	return nil
}

func NormalizeWallets(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, raw := range items {
		// Env values arrive as one comma or space separated string.
		for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		}) {
			addr := strings.ToLower(strings.TrimSpace(part))
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
