// Package config содержит логику чтения конфигурации сервиса маркетплейса.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultKafkaTopic = "marketplace.events"
)

// Config содержит параметры конфигурации сервиса маркетплейса.
type Config struct {
	RunAddress   string   `env:"RUN_ADDRESS"`
	DatabaseURI  string   `env:"DATABASE_URI"`
	AuthSecret   string   `env:"AUTH_SECRET"`
	RedisAddress string   `env:"REDIS_ADDRESS"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"`
	// RateLimit задаёт допустимое число запросов в секунду от одного клиента, 0 отключает ограничение.
	RateLimit float64 `env:"RATE_LIMIT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	var brokers string
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store if empty")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth tokens")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for idempotency keys")
	flag.StringVar(&brokers, "k", "", "comma separated kafka brokers")
	flag.StringVar(&cfg.KafkaTopic, "t", defaultKafkaTopic, "kafka topic for domain events")
	flag.Float64Var(&cfg.RateLimit, "l", 0, "requests per second per client, 0 disables")

	flag.Parse()

	cfg.KafkaBrokers = splitList(brokers)

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if brokers := splitList(strings.Join(envCfg.KafkaBrokers, ",")); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	if envCfg.KafkaTopic != "" {
		cfg.KafkaTopic = envCfg.KafkaTopic
	}
	if envCfg.RateLimit != 0 {
		cfg.RateLimit = envCfg.RateLimit
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = defaultKafkaTopic
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative: %v", cfg.RateLimit)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var res []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
