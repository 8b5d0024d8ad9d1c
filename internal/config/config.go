package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSessionSecret signs cookie sessions in development. Validate refuses
// it once JWT auth is on or the mode is release.
const DefaultSessionSecret = "playroom-dev-secret"

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type PresenceConfig struct {
	Grace time.Duration `mapstructure:"grace"`
}

type InviteConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateWindow    time.Duration `mapstructure:"rate_window"`
}

type RoomConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	Backpressure  string        `mapstructure:"backpressure"`
}

type SnakeConfig struct {
	Tick     time.Duration `mapstructure:"tick"`
	GridSize int           `mapstructure:"grid_size"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type WebRTCConfig struct {
	ICEServers []ICEServer `mapstructure:"ice_servers"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Presence PresenceConfig `mapstructure:"presence"`
	Invite   InviteConfig   `mapstructure:"invite"`
	Room     RoomConfig     `mapstructure:"room"`
	Snake    SnakeConfig    `mapstructure:"snake"`
	Store    StoreConfig    `mapstructure:"store"`
	WebRTC   WebRTCConfig   `mapstructure:"webrtc"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "debug")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", DefaultSessionSecret)
	v.SetDefault("log_level", "info")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("presence.grace", "5s")

	v.SetDefault("invite.ttl", "24h")
	v.SetDefault("invite.sweep_interval", "1m")
	v.SetDefault("invite.rate_limit", 20)
	v.SetDefault("invite.rate_window", "1m")

	v.SetDefault("room.idle_timeout", "30m")
	v.SetDefault("room.sweep_interval", "1m")
	v.SetDefault("room.send_buffer", 64)
	v.SetDefault("room.backpressure", "drop")

	v.SetDefault("snake.tick", "150ms")
	v.SetDefault("snake.grid_size", 20)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "data/playroom.db")

	v.SetDefault("webrtc.ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// PLAYROOM_* environment variables override both, e.g. PLAYROOM_ROOM_IDLE_TIMEOUT.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file. A missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("PLAYROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(fileName); statErr == nil {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Room.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Room.Backpressure)
	}
	if c.Room.SendBuffer <= 0 {
		return fmt.Errorf("room.send_buffer must be positive")
	}
	if c.Snake.Tick <= 0 {
		return fmt.Errorf("snake.tick must be positive")
	}
	if (c.Auth.JWTSecret != "" || c.Mode == "release") && (c.Secret == "" || c.Secret == DefaultSessionSecret) {
		return fmt.Errorf("secret must be set to a private value when auth.jwt_secret is set or mode is release")
	}
	return nil
}
