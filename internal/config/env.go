package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigurationFile = "/usr/local/src/skiff/app/api/config/configuration.json"

type Config struct {
	// From the configuration file.
	OutputDirectory string   `json:"output_directory" yaml:"output_directory"`
	UsersFile       string   `json:"users_file" yaml:"users_file"`
	Port            string   `json:"port" yaml:"port"`
	AllowedOrigins  []string `json:"allowed_origins" yaml:"allowed_origins"`
	ParserURL       string   `json:"parser_url" yaml:"parser_url"`
	ArchiveBucket   string   `json:"archive_bucket" yaml:"archive_bucket"`

	// From the environment only.
	ConfigurationFile string `json:"-" yaml:"-"`
	Production        bool   `json:"-" yaml:"-"`
	LogLevel          string `json:"-" yaml:"-"`
	ParserWorkers     int    `json:"-" yaml:"-"`
	MaxUploadBytes    int64  `json:"-" yaml:"-"`
	AwsAccessKey      string `json:"-" yaml:"-"`
	AwsSecretKey      string `json:"-" yaml:"-"`
	AwsRegion         string `json:"-" yaml:"-"`
}

// LoadConfig loads the environment and the configuration file it points at.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	return LoadConfigFrom(getEnv("PAWLS_CONFIGURATION_FILE", defaultConfigurationFile))
}

// LoadConfigFrom reads the configuration file at path and applies the
// environment overrides on top of it.
func LoadConfigFrom(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ParserURL = getEnv("PARSER_URL", cfg.ParserURL)
	cfg.ArchiveBucket = getEnv("ARCHIVE_BUCKET", cfg.ArchiveBucket)
	cfg.Production = getEnv("IN_PRODUCTION", "dev") == "prod"
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.ParserWorkers = getEnvInt("PARSER_WORKERS", 4)
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_MB", 64)) << 20
	cfg.AwsAccessKey = getEnv("AWS_ACCESS_KEY", "")
	cfg.AwsSecretKey = getEnv("AWS_SECRET_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "us-east-2")

	return cfg, nil
}

// LoadFile reads a JSON or YAML configuration file. Defaults are applied for
// everything except output_directory, which is required.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("decode configuration %s: %w", path, err)
	}

	if cfg.OutputDirectory == "" {
		return nil, fmt.Errorf("configuration %s: output_directory not set", path)
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = filepath.Join(cfg.OutputDirectory, "allowed_users.txt")
	}
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	cfg.ConfigurationFile = path
	cfg.ParserWorkers = 4
	cfg.MaxUploadBytes = 64 << 20
	cfg.LogLevel = "INFO"

	return cfg, nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("environment value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
