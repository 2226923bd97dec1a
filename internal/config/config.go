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

type MediaConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	QueueSize  int           `mapstructure:"queue_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	Secret          string        `mapstructure:"secret"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Backpressure    string        `mapstructure:"backpressure"`

	MaxRoomMembers    int     `mapstructure:"max_room_members"`
	CreateRoomRate    float64 `mapstructure:"create_room_rate"`
	CreateRoomBurst   int     `mapstructure:"create_room_burst"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`

	ICEServers    []string `mapstructure:"ice_servers"`
	ICEUsername   string   `mapstructure:"ice_username"`
	ICECredential string   `mapstructure:"ice_credential"`

	Media MediaConfig `mapstructure:"media"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("backpressure", "kick")
	v.SetDefault("max_room_members", 100)
	v.SetDefault("create_room_rate", 1.0)
	v.SetDefault("create_room_burst", 5)
	v.SetDefault("messages_per_second", 50.0)
	v.SetDefault("message_burst", 100)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice_username", "")
	v.SetDefault("ice_credential", "")
	v.SetDefault("media.webhook_url", "")
	v.SetDefault("media.queue_size", 256)
	v.SetDefault("media.timeout", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults. Any key
// can be overridden from the environment, e.g. SIGNAL_PORT or
// SIGNAL_MEDIA_WEBHOOK_URL. A missing file is not an error; a file that
// does not parse is.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	positive("port", c.Port > 0 && c.Port < 65536)
	positive("read_limit", c.ReadLimit > 0)
	positive("ping_period", c.PingPeriod > 0)
	positive("write_wait", c.WriteWait > 0)
	positive("send_buffer", c.SendBuffer > 0)
	positive("shutdown_timeout", c.ShutdownTimeout > 0)
	positive("max_room_members", c.MaxRoomMembers > 0)
	positive("create_room_rate", c.CreateRoomRate > 0)
	positive("create_room_burst", c.CreateRoomBurst > 0)
	positive("messages_per_second", c.MessagesPerSecond > 0)
	positive("message_burst", c.MessageBurst > 0)
	positive("media.queue_size", c.Media.QueueSize > 0)
	positive("media.timeout", c.Media.Timeout > 0)
	if c.Backpressure != "kick" && c.Backpressure != "drop" {
		errs = append(errs, fmt.Errorf("backpressure must be kick or drop, got %q", c.Backpressure))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret must be set"))
	}
	return errors.Join(errs...)
}
