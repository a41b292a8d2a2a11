package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	HTTPAddr         string        `mapstructure:"http_addr"`
	MaxFrameBytes    uint32        `mapstructure:"max_frame_bytes"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	JoinTimeout      time.Duration `mapstructure:"join_timeout"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`
	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`
}

// Addr is the socket server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func defaultHost() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	return "0.0.0.0"
}

// Load reads config/config.<CONFIG_ENV>.yaml, then TABLEKEEPER_* env vars, then flags.
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fs := pflag.NewFlagSet("tablekeeper", pflag.ContinueOnError)
	fs.String("host", defaultHost(), "socket server bind host")
	fs.Int("port", 8080, "socket server port")
	fs.String("http-addr", ":8081", "HTTP inspection and WebSocket address, empty to disable")
	fs.String("config", "", "config file path, overrides CONFIG_ENV lookup")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if f, _ := fs.GetString("config"); f != "" {
		fileName = f
	}
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("max_frame_bytes", 1<<20)
	v.SetDefault("read_timeout", "0s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("join_timeout", "0s")
	v.SetDefault("reap_interval", "5s")
	v.SetDefault("join_rate_limit", 0)
	v.SetDefault("join_rate_interval", "10s")

	v.SetEnvPrefix("TABLEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{"host": "host", "port": "port", "http_addr": "http-addr"} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("addr", cfg.Addr()).Str("http", cfg.HTTPAddr).
		Dur("join_timeout", cfg.JoinTimeout).Msg("config ready")
	return &cfg, nil
}
