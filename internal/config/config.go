package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the knobs every service reads from the environment. Fields
// a given service does not use are simply ignored by it.
type Config struct {
	Port        string
	PostgresURL string
	RedisAddr   string

	KafkaBrokers []string

	UserServiceURL    string
	CatalogServiceURL string
	OrderServiceURL   string
	EmailServiceURL   string

	RequestTimeout time.Duration
}

// Load reads the environment, after best-effort loading a local .env file.
func Load(defaultPort string) Config {
	_ = godotenv.Load()

	return Config{
		Port:              getenv("PORT", defaultPort),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBrokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
		UserServiceURL:    getenv("USER_SERVICE_URL", "http://localhost:8081"),
		CatalogServiceURL: getenv("CATALOG_SERVICE_URL", "http://localhost:8082"),
		OrderServiceURL:   getenv("ORDER_SERVICE_URL", "http://localhost:8083"),
		EmailServiceURL:   getenv("EMAIL_SERVICE_URL", "http://localhost:8084"),
		RequestTimeout:    getenvSeconds("REQUEST_TIMEOUT", 5),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvSeconds(key string, def int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
