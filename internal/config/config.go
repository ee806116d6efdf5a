package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Corpus drivers understood by the repository layer.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	MaxRequestBodySize int64
	MaxImageBytes      int64
	MaxImagePixels     int64

	SearchWorkers   int
	SimilarityFloor float64
	HistogramWeight float64
	ColorWeight     float64
	MaxResults      int

	CorpusDriver string
	CorpusDSN    string

	FetchRateLimit    float64
	AllowedImageHosts []string

	AzureStorageAccount string
	AzureStorageKey     string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	LocalImageRoot string
	LogLevel       string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether azblob:// locations can be served.
func (c *Config) AzureEnabled() bool {
	return c.AzureStorageAccount != "" && c.AzureStorageKey != ""
}

// LocalFilesEnabled reports whether file:/// locations can be served.
func (c *Config) LocalFilesEnabled() bool {
	return c.LocalImageRoot != ""
}

// MinioEnabled reports whether s3:// locations can be served.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != ""
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		MaxImageBytes:      parseIntOrDefault("MAX_IMAGE_BYTES", 20*1024*1024),
		MaxImagePixels:     parseIntOrDefault("MAX_IMAGE_PIXELS", 50_000_000),

		SearchWorkers:   int(parseIntOrDefault("SEARCH_WORKERS", int64(runtime.NumCPU()))),
		SimilarityFloor: parseFloatOrDefault("SIMILARITY_FLOOR", 0.3),
		HistogramWeight: parseFloatOrDefault("HISTOGRAM_WEIGHT", 0.6),
		ColorWeight:     parseFloatOrDefault("COLOR_WEIGHT", 0.4),
		MaxResults:      int(parseIntOrDefault("MAX_RESULTS", 10)),

		CorpusDriver: strings.ToLower(getEnvOrDefault("CORPUS_DRIVER", DriverSQLite)),
		CorpusDSN:    getEnvOrDefault("CORPUS_DSN", "file:photosearch.db"),

		FetchRateLimit:    parseFloatOrDefault("FETCH_RATE_LIMIT", 0),
		AllowedImageHosts: parseListOrDefault("ALLOWED_IMAGE_HOSTS", nil),

		AzureStorageAccount: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:     os.Getenv("AZURE_STORAGE_KEY"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    parseBoolOrDefault("MINIO_USE_SSL", true),

		LocalImageRoot: os.Getenv("LOCAL_IMAGE_ROOT"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be > 0 (got %d)", c.MaxImageBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)",
			c.RequestTimeout, c.ImageFetchTimeout)
	}
	if c.SearchWorkers <= 0 {
		return fmt.Errorf("SEARCH_WORKERS must be > 0 (got %d)", c.SearchWorkers)
	}
	if c.SimilarityFloor < 0 || c.SimilarityFloor > 1 {
		return fmt.Errorf("SIMILARITY_FLOOR must be within [0,1] (got %g)", c.SimilarityFloor)
	}
	if c.HistogramWeight < 0 || c.ColorWeight < 0 || c.HistogramWeight+c.ColorWeight == 0 {
		return fmt.Errorf("score weights must be >= 0 with a positive sum (got histogram=%g, color=%g)",
			c.HistogramWeight, c.ColorWeight)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("MAX_RESULTS must be > 0 (got %d)", c.MaxResults)
	}
	if c.FetchRateLimit < 0 {
		return fmt.Errorf("FETCH_RATE_LIMIT must be >= 0 (got %g)", c.FetchRateLimit)
	}
	switch c.CorpusDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported CORPUS_DRIVER: %q", c.CorpusDriver)
	}
	if strings.TrimSpace(c.CorpusDSN) == "" {
		return fmt.Errorf("CORPUS_DSN must not be empty")
	}
	if c.MinioEnabled() && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
