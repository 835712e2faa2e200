package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
}

type SessionConfig struct {
	InactivityMinutes int `yaml:"inactivity_minutes"`
}

// ProvidersConfig carries webhook verification secrets. Empty values
// disable verification for that provider.
type ProvidersConfig struct {
	StripeSigningSecret string `yaml:"stripe_signing_secret"`
	TypeformSecret      string `yaml:"typeform_secret"`
	CalendlySecret      string `yaml:"calendly_secret"`
	HubSpotToken        string `yaml:"hubspot_token"`
	ZapierSecret        string `yaml:"zapier_secret"`
}

func (s SessionConfig) InactivityGap() time.Duration {
	return time.Duration(s.InactivityMinutes) * time.Minute
}

// Load reads a YAML config file, expanding ${ENV} references before
// parsing so secrets stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Session.InactivityMinutes == 0 {
		c.Session.InactivityMinutes = 30
	}
}
