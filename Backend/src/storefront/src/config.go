package main

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName    string
	HTTPAddr       string
	GRPCAddr       string
	DBPath         string
	RabbitURL      string
	RabbitExchange string
	StockQueue     string
	SeedOnStart    bool
	AllowedOrigins []string
	SessionTTL     time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadConfig lee un .env opcional y luego el entorno.
func LoadConfig() Config {
	_ = godotenv.Load()

	ttl, err := time.ParseDuration(getenv("STOREFRONT_SESSION_TTL", "720h"))
	if err != nil {
		ttl = 720 * time.Hour
	}
	return Config{
		ServiceName:    getenv("STOREFRONT_SERVICE_NAME", "storefront"),
		HTTPAddr:       getenv("STOREFRONT_HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("STOREFRONT_GRPC_ADDR", ":50060"),
		DBPath:         getenv("STOREFRONT_DB_PATH", "./data/storefront.db"),
		RabbitURL:      os.Getenv("RABBITMQ_URL"),
		RabbitExchange: getenv("STOREFRONT_EXCHANGE", "storefront.events"),
		StockQueue:     getenv("STOREFRONT_STOCK_QUEUE", "storefront.stock"),
		SeedOnStart:    getenv("STOREFRONT_SEED", "true") == "true",
		AllowedOrigins: splitList(getenv("STOREFRONT_CORS_ORIGINS", "*")),
		SessionTTL:     ttl,
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const (
	ShutdownGrace = 10 * time.Second
)
