package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	ServerPort     string
	Environment    string
	JWTExpiry      time.Duration
	AllowedOrigins []string

	// Send journal
	WALEnabled bool
	WALPath    string

	// Messaging
	TypingTTL         time.Duration
	MaxMessageLength  int
	WSSessionLifetime time.Duration

	// Rate limiting
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	WSSendLimit          int
	WSSendWindow         time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_driver", "postgres")
	v.SetDefault("server_port", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("jwt_expiry", "24h")
	v.SetDefault("allowed_origins", "http://localhost:3000,http://localhost:5173")

	v.SetDefault("wal_enabled", true)
	v.SetDefault("wal_path", "data/wal_messages")

	v.SetDefault("typing_ttl", "10s")
	v.SetDefault("max_message_length", 5000)
	v.SetDefault("ws_session_lifetime", "15m")

	v.SetDefault("rate_limit_max_requests", 100)
	v.SetDefault("rate_limit_window", "1m")
	v.SetDefault("ws_send_limit", 30)
	v.SetDefault("ws_send_window", "1m")
}

// Load reads .env (when present), an optional config/config.yaml and the process
// environment, in increasing order of precedence.
func Load() *Config {
	// Docker containers use environment variables directly
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("Invalid config file: %v", err)
		}
	}

	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		DatabaseDriver: strings.ToLower(v.GetString("database_driver")),
		DatabaseURL:    v.GetString("database_url"),
		RedisURL:       v.GetString("redis_url"),
		JWTSecret:      v.GetString("jwt_secret"),
		ServerPort:     v.GetString("server_port"),
		Environment:    v.GetString("environment"),
		JWTExpiry:      getDuration(v, "jwt_expiry", "24h"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),

		WALEnabled: v.GetBool("wal_enabled"),
		WALPath:    v.GetString("wal_path"),

		TypingTTL:         getDuration(v, "typing_ttl", "10s"),
		MaxMessageLength:  v.GetInt("max_message_length"),
		WSSessionLifetime: getDuration(v, "ws_session_lifetime", "15m"),

		RateLimitMaxRequests: v.GetInt("rate_limit_max_requests"),
		RateLimitWindow:      getDuration(v, "rate_limit_window", "1m"),
		WSSendLimit:          v.GetInt("ws_send_limit"),
		WSSendWindow:         getDuration(v, "ws_send_window", "1m"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getDuration parses a duration key, falling back to defaultVal when malformed
func getDuration(v *viper.Viper, key, defaultVal string) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid %s value %q, using default: %s", key, raw, defaultVal)
		d, _ = time.ParseDuration(defaultVal)
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
