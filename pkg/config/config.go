package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Script   ScriptConfig   `yaml:"script"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// ScriptConfig controls where scripts are found and how much history a run sees
type ScriptConfig struct {
	Dir     string `yaml:"dir"`
	MaxBars int    `yaml:"max_bars"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment and YAML file
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile loads configuration from environment and the given YAML file, if it exists
func LoadFile(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Path: getEnvOrDefault("DATABASE_PATH", "./chartscript.db"),
		},
		API: APIConfig{
			Port:    getEnvIntOrDefault("API_PORT", 8080),
			Timeout: time.Duration(getEnvIntOrDefault("API_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Script: ScriptConfig{
			Dir:     getEnvOrDefault("SCRIPT_DIR", "./scripts"),
			MaxBars: getEnvIntOrDefault("SCRIPT_MAX_BARS", 5000),
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}

	// Load YAML config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault ignores values that are not non-negative integers
func getEnvIntOrDefault(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return defaultValue
}
