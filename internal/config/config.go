package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverR2    = "r2"
	DriverLocal = "local"
)

type Config struct {
	Port           string
	AppBaseURL     string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	AdminAPIToken  string

	StorageDriver   string
	LocalStorageDir string
	R2              R2Config

	ImageProcessor    string
	ImageMaxDimension int
	JPEGQuality       int

	ProbeTimeout    time.Duration
	RedisURL        string
	ResolveCacheTTL time.Duration
}

// R2Config is everything needed to talk to the bucket and to build the
// three public URL shapes for an object.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Endpoint        string
	Region          string
	CustomDomain    string
	DevDomain       string

	// Production is set for APP_ENV=production, Platform when running on a
	// managed host (VERCEL is present).
	Production bool
	Platform   bool
}

func Load() *Config {
	// Try to load .env file from project root (one level up from backend/)
	godotenv.Load(filepath.Join("..", ".env"))

	// Also try loading from current directory
	godotenv.Load(".env")

	env := getEnv("APP_ENV", "development")

	r2 := R2Config{
		AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		BucketName:      getEnv("R2_BUCKET_NAME", ""),
		Endpoint:        getEnv("R2_ENDPOINT", ""),
		Region:          getEnv("R2_REGION", "auto"),
		CustomDomain:    getEnv("R2_CUSTOM_DOMAIN", ""),
		DevDomain:       getEnv("R2_DEV_DOMAIN", ""),
		Production:      env == "production",
		Platform:        os.Getenv("VERCEL") != "",
	}
	r2.Endpoint = r2.ResolvedEndpoint()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AppBaseURL:     getEnv("APP_BASE_URL", "http://localhost:3000"),
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		AdminAPIToken:  getEnv("ADMIN_API_TOKEN", ""),

		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", DriverR2)),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "./data/uploads"),
		R2:              r2,

		ImageProcessor:    strings.ToLower(getEnv("IMAGE_PROCESSOR", "simple")),
		ImageMaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 2560),
		JPEGQuality:       getEnvInt("JPEG_QUALITY", 85),

		ProbeTimeout:    getEnvDuration("PROBE_TIMEOUT", 5*time.Second),
		RedisURL:        getEnv("REDIS_URL", ""),
		ResolveCacheTTL: getEnvDuration("RESOLVE_CACHE_TTL", 10*time.Minute),
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks the settings the selected storage driver needs.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverR2:
		return c.R2.Validate()
	case DriverLocal:
		if c.LocalStorageDir == "" {
			return fmt.Errorf("LOCAL_STORAGE_DIR is required for the local storage driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
}

// ResolvedEndpoint returns the S3 API endpoint, deriving it from the account
// id when R2_ENDPOINT is unset.
func (r R2Config) ResolvedEndpoint() string {
	if r.Endpoint != "" {
		return strings.TrimSuffix(r.Endpoint, "/")
	}
	if r.AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.AccountID)
	}
	return ""
}

// Validate fails when any value required to reach the bucket is missing.
func (r R2Config) Validate() error {
	var missing []string
	if r.BucketName == "" {
		missing = append(missing, "R2_BUCKET_NAME")
	}
	if r.AccessKeyID == "" {
		missing = append(missing, "R2_ACCESS_KEY_ID")
	}
	if r.SecretAccessKey == "" {
		missing = append(missing, "R2_SECRET_ACCESS_KEY")
	}
	if r.ResolvedEndpoint() == "" {
		missing = append(missing, "R2_ENDPOINT or R2_ACCOUNT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required R2 configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
