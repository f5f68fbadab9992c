package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the client and the local stub
// backend. A single base-URL variable selects the backend host; everything
// else has a workable default.
type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	DataDir        string
	OutputDir      string
	Platform       string
	AppVersion     string
	FreeDailyLimit int

	// Share uploads the exported image to a public bucket; optional.
	ShareS3Endpoint      string
	ShareS3Region        string
	ShareS3AccessKey     string
	ShareS3SecretKey     string
	ShareS3Bucket        string
	ShareS3PublicBaseURL string
	ShareS3UsePathStyle  bool
	ShareS3Prefix        string

	StubListenAddr      string
	StubProcessingDelay time.Duration
	StubStartingCredits int
}

const defaultAPIBaseURL = "http://localhost:8000"

// Load reads configuration from environment variables, applying sane defaults.
// A missing .env file is not an error; the CLI must work with zero setup.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	dataDir := os.Getenv("PHOTORESTORE_DATA_DIR")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		dataDir = filepath.Join(base, "photorestore")
	}

	cfg := Config{
		APIBaseURL:     normalizeBaseURL(getEnv("PHOTORESTORE_API_URL", defaultAPIBaseURL)),
		RequestTimeout: time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		DataDir:        dataDir,
		OutputDir:      getEnv("PHOTORESTORE_OUTPUT_DIR", "restored"),
		Platform:       getEnv("PHOTORESTORE_PLATFORM", runtime.GOOS),
		AppVersion:     getEnv("PHOTORESTORE_APP_VERSION", "1.0.0"),
		FreeDailyLimit: getInt("FREE_DAILY_LIMIT", 5),

		ShareS3Endpoint:      getEnv("SHARE_S3_ENDPOINT", ""),
		ShareS3Region:        os.Getenv("SHARE_S3_REGION"),
		ShareS3AccessKey:     os.Getenv("SHARE_S3_ACCESS_KEY"),
		ShareS3SecretKey:     os.Getenv("SHARE_S3_SECRET_KEY"),
		ShareS3Bucket:        os.Getenv("SHARE_S3_BUCKET"),
		ShareS3PublicBaseURL: os.Getenv("SHARE_S3_PUBLIC_BASE_URL"),
		ShareS3UsePathStyle:  getBool("SHARE_S3_USE_PATH_STYLE", false),
		ShareS3Prefix:        getEnv("SHARE_S3_PREFIX", "shared"),

		StubListenAddr:      getEnv("STUB_LISTEN_ADDR", ":8000"),
		StubProcessingDelay: time.Second * time.Duration(getInt("STUB_PROCESSING_DELAY_SECONDS", 2)),
		StubStartingCredits: getInt("STUB_STARTING_CREDITS", 3),
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("PHOTORESTORE_API_URL is not a valid URL")
	}

	return cfg, nil
}

// ShareConfigured reports whether the optional share bucket is fully set up.
func (c Config) ShareConfigured() bool {
	return c.ShareS3Region != "" && c.ShareS3AccessKey != "" && c.ShareS3SecretKey != "" &&
		c.ShareS3Bucket != "" && c.ShareS3PublicBaseURL != ""
}

// normalizeBaseURL tolerates host-only values and trailing slashes. A bare
// host is assumed to be https; an unparseable value yields "".
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}
	if parsed.Host == "" {
		return ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
