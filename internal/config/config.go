package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Backend struct {
		BaseURL        string `yaml:"base_url"`
		Timeout        string `yaml:"timeout"`
		LongTimeout    string `yaml:"long_timeout"`
		GenerateMethod string `yaml:"generate_method"`
	} `yaml:"backend"`
	Upload struct {
		Extensions []string `yaml:"extensions"`
	} `yaml:"upload"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Artifacts struct {
		TTL string `yaml:"ttl"`
	} `yaml:"artifacts"`
	Review struct {
		IdleTimeout string `yaml:"idle_timeout"` // detached sessions older than this are ended
		ReapEvery   string `yaml:"reap_every"`
	} `yaml:"review"`
	Chat struct {
		Provider string `yaml:"provider"` // "backend" or "openai"
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"chat"`
}

const (
	DefaultBaseURL     = "http://localhost:8001"
	DefaultTimeout     = 5 * time.Minute
	DefaultLongTimeout = 10 * time.Minute

	DefaultReviewIdleTimeout = 30 * time.Minute
	DefaultReviewReapEvery   = time.Minute
)

// Load reads YAML config from path. A missing file yields defaults so the
// CLI works against a local backend without any setup.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if one exists.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) applyEnv() {
	if v := env("STUDY_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := env("LOG_MODE"); v != "" {
		c.Log.Mode = v
	}
	if v := env("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := env("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := env("OPENAI_API_KEY"); v != "" && c.Chat.APIKey == "" {
		c.Chat.APIKey = v
	}
	if v := env("CHAT_PROVIDER"); v != "" {
		c.Chat.Provider = v
	}
	c.Redis.DB = envInt("REDIS_DB", c.Redis.DB)
}

func (c *Config) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if c.Backend.GenerateMethod == "" {
		c.Backend.GenerateMethod = "GET"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if len(c.Upload.Extensions) == 0 {
		c.Upload.Extensions = []string{".pdf"}
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = "backend"
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func envInt(name string, def int) int {
	v := env(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
