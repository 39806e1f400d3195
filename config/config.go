package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string `env:"SERVER_PORT" envDefault:"8082"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"rental_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Empty disables the listing sync consumer and switches notifications to the log.
	RabbitURL string `env:"RABBITMQ_URL"`

	// Empty disables the availability cache.
	RedisURL             string        `env:"REDIS_URL"`
	AvailabilityCacheTTL time.Duration `env:"AVAILABILITY_CACHE_TTL" envDefault:"5m"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER"`

	PaymentBaseURL   string        `env:"PAYMENT_BASE_URL" envDefault:"https://api.moyasar.com/v1"`
	PaymentSecretKey string        `env:"PAYMENT_SECRET_KEY"`
	PaymentCurrency  string        `env:"PAYMENT_CURRENCY" envDefault:"SAR"`
	PaymentTimeout   time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"15s"`
	FrontendAppURL   string        `env:"FRONTEND_APP_URL" envDefault:"http://localhost:3000"`
	PublicBaseURL    string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8082"`

	OTelEndpoint    string `env:"OTEL_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"rental-service"`
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] .env file not found, using environment only")
	}

	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Parse builds a Config from the process environment.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}
