package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	StaticPath    string        `mapstructure:"static_path"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	Secret        string        `mapstructure:"secret"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	EmbedHost     string        `mapstructure:"embed_host"`

	Room RoomConfig `mapstructure:"room"`
}

// RoomConfig holds the fallbacks applied to rooms created without explicit
// options.
type RoomConfig struct {
	MaxUsers         int           `mapstructure:"max_users"`
	InviteTTL        time.Duration `mapstructure:"invite_ttl"`
	PublicRoomsLimit int           `mapstructure:"public_rooms_limit"`
}

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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("embed_host", "localhost")
	v.SetDefault("room.max_users", 50)
	v.SetDefault("room.invite_ttl", "24h")
	v.SetDefault("room.public_rooms_limit", 20)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Mode, cfg.Port, cfg.StaticPath)
	return &cfg, nil
}
