package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Storage    Storage
	Redis      Redis
	HTTPServer HTTPServer
	Upstream   Upstream
	Cache      Cache
	Retry      Retry
}

type Storage struct {
	Timeout  time.Duration `env:"BD_TIMEOUT" env-default:"10s"`
	Host     string        `env:"BD_HOST" env-required:"true"`
	Port     int           `env:"BD_PORT" env-required:"true"`
	User     string        `env:"BD_USER" env-required:"true"`
	Password string        `env:"BD_PASSWORD" env-required:"true"`
	DBName   string        `env:"BD_DBNAME" env-required:"true"`
	SSLMode  string        `env:"BD_SSL_MODE" env-default:"disable"`
	Schema   string        `env:"BD_SCHEMA" env-default:"dev"`
}

// Redis is optional: an empty Addr disables the rate-update publisher.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type HTTPServer struct {
	Port        string        `env:"HTTP_PORT" env-default:"8082"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT" env-default:"2m"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Upstream struct {
	URL     string        `env:"UPSTREAM_URL" env-default:"https://bullions.co.in/api/rates"`
	APIKey  string        `env:"UPSTREAM_API_KEY" env-default:""`
	Source  string        `env:"UPSTREAM_SOURCE" env-default:"Bullions.co.in"`
	Timeout time.Duration `env:"UPSTREAM_TIMEOUT" env-default:"10s"`
}

type Cache struct {
	Locality    string        `env:"RATES_LOCALITY" env-default:"India"`
	MarketTTL   time.Duration `env:"CACHE_MARKET_TTL" env-default:"5m"`
	OffHoursTTL time.Duration `env:"CACHE_OFF_HOURS_TTL" env-default:"30m"`
}

type Retry struct {
	MaxRetries     int           `env:"RETRY_MAX" env-default:"3"`
	InitialBackoff time.Duration `env:"RETRY_INITIAL_BACKOFF" env-default:"1s"`
}

func NewConfig() *Config {
	cfg := &Config{}

	_ = godotenv.Load(".env")

	err := cleanenv.ReadEnv(cfg)
	if err != nil {
		log.Fatal("Error reading env")
	}

	return cfg
}
