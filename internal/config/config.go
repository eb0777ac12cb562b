// Package config loads the service configuration from the environment.
//
// A .env file in the working directory (or the path in ENV_FILE) is read
// first; variables already present in the environment take precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// APIKeyVar names the weather provider secret.
const APIKeyVar = "OPENWEATHERMAP_API_KEY"

// ConfigError is fatal: the service must not start serving.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type Config struct {
	Port           string
	ModelPath      string
	ONNXRuntimeLib string
	LogLevel       string
	GinMode        string
	AllowedOrigins []string

	RequestTimeout time.Duration
	MaxUploadBytes int64
	CoarseErrors   bool

	WeatherAPIKey  string
	WeatherBaseURL string
	WeatherUnits   string
	WeatherTimeout time.Duration
}

// Load reads the .env file if present and builds a Config from the environment.
func Load() (*Config, error) {
	path := Var("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Key: "ENV_FILE", Err: err}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           StringWithDefault("PORT", "8000"),
		ModelPath:      StringWithDefault("MODEL_PATH", "models/recognition_model.skm"),
		ONNXRuntimeLib: Var("ONNXRUNTIME_LIB"),
		LogLevel:       StringWithDefault("LOG_LEVEL", "info"),
		GinMode:        StringWithDefault("GIN_MODE", "release"),
		AllowedOrigins: List("ALLOWED_ORIGINS", []string{"*"}),
		WeatherAPIKey:  Var(APIKeyVar),
		WeatherBaseURL: strings.TrimSuffix(StringWithDefault("WEATHER_BASE_URL", "https://api.openweathermap.org"), "/"),
		WeatherUnits:   StringWithDefault("WEATHER_UNITS", "imperial"),
	}

	var err error
	if cfg.RequestTimeout, err = Duration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherTimeout, err = Duration("WEATHER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = Int64("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}
	if cfg.CoarseErrors, err = Bool("COARSE_ERRORS", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	if c.WeatherAPIKey == "" {
		return &ConfigError{Key: APIKeyVar, Err: errors.New("not set")}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Key: "REQUEST_TIMEOUT", Err: errors.New("must be positive")}
	}
	if c.WeatherTimeout <= 0 {
		return &ConfigError{Key: "WEATHER_TIMEOUT", Err: errors.New("must be positive")}
	}
	if c.MaxUploadBytes <= 0 {
		return &ConfigError{Key: "MAX_UPLOAD_BYTES", Err: errors.New("must be positive")}
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return &ConfigError{Key: "GIN_MODE", Err: fmt.Errorf("unknown mode %q", c.GinMode)}
	}
	switch c.WeatherUnits {
	case "standard", "metric", "imperial":
	default:
		return &ConfigError{Key: "WEATHER_UNITS", Err: fmt.Errorf("unknown units %q", c.WeatherUnits)}
	}
	return nil
}

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

func StringWithDefault(key, defaultValue string) string {
	if s := Var(key); s != "" {
		return s
	}
	return defaultValue
}

// List splits a comma separated variable, dropping empty entries.
func List(key string, defaultValue []string) []string {
	s := Var(key)
	if s == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Duration(key string, defaultValue time.Duration) (time.Duration, error) {
	s := Var(key)
	if s == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	// bare numbers are seconds
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ConfigError{Key: key, Err: fmt.Errorf("invalid duration %q", s)}
	}
	return time.Duration(n) * time.Second, nil
}

func Int64(key string, defaultValue int64) (int64, error) {
	s := Var(key)
	if s == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ConfigError{Key: key, Err: err}
	}
	return n, nil
}

func Bool(key string, defaultValue bool) (bool, error) {
	s := Var(key)
	if s == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &ConfigError{Key: key, Err: err}
	}
	return b, nil
}
