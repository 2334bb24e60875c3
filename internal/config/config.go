package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Timeout         string `yaml:"timeout"`
		Distractors     int    `yaml:"distractors"`
		LeaderboardSize int    `yaml:"leaderboard_size"`
		AuthorCacheTTL  string `yaml:"author_cache_ttl"`
		ReapInterval    string `yaml:"reap_interval"`
	} `yaml:"quiz"`
	Ingest struct {
		FlushCooldown   string `yaml:"flush_cooldown"`
		HistoryPageSize int    `yaml:"history_page_size"`
	} `yaml:"ingest"`
	Commands struct {
		Prefix     string `yaml:"prefix"`
		Guess      string `yaml:"guess"`
		Scoreboard string `yaml:"scoreboard"`
		Mixes      string `yaml:"mixes"`
	} `yaml:"commands"`
}

// Load reads YAML config from path and fills in defaults for unset values.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration that runs entirely in memory.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Quiz.Distractors <= 0 {
		c.Quiz.Distractors = 2
	}
	if c.Quiz.LeaderboardSize <= 0 {
		c.Quiz.LeaderboardSize = 10
	}
	if c.Ingest.HistoryPageSize <= 0 {
		c.Ingest.HistoryPageSize = 100
	}
	if c.Commands.Prefix == "" {
		c.Commands.Prefix = "!"
	}
	if c.Commands.Guess == "" {
		c.Commands.Guess = c.Commands.Prefix + "guess"
	}
	if c.Commands.Scoreboard == "" {
		c.Commands.Scoreboard = c.Commands.Prefix + "scoreboard"
	}
	if c.Commands.Mixes == "" {
		c.Commands.Mixes = c.Commands.Prefix + "mixes"
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
