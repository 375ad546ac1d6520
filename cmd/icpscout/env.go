package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/conference-icp-scout/internal/classify"
	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/internal/oracle"
)

// envDefaults are flag defaults taken from the environment (and .env).
type envDefaults struct {
	APIKey  string
	Model   string
	BaseURL string

	SponsorLinkCap int
	BatchSize      int

	FetchTimeout   time.Duration
	RenderTimeout  time.Duration
	RenderDisabled bool
	ChromePath     string

	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	LogLevel    string
	LogFormat   string
	MetricsFile string

	S3Region    string
	S3Profile   string
	S3PathStyle bool
}

func loadEnvDefaults() (envDefaults, error) {
	d := envDefaults{
		APIKey:      envString("GEMINI_API_KEY", envString("GOOGLE_API_KEY", "")),
		Model:       envString("GEMINI_MODEL", oracle.DefaultModel),
		BaseURL:     envString("GEMINI_BASE_URL", ""),
		ChromePath:  envString("CHROME_PATH", ""),
		LogLevel:    envString("LOG_LEVEL", "info"),
		LogFormat:   envString("LOG_FORMAT", "console"),
		MetricsFile: envString("METRICS_FILE", ""),
		S3Region:    envString("S3_REGION", ""),
		S3Profile:   envString("S3_PROFILE", ""),
	}

	var err error
	if d.SponsorLinkCap, err = envInt("SPONSOR_LINK_CAP", extract.DefaultSponsorLinkCap); err != nil {
		return envDefaults{}, err
	}
	if d.BatchSize, err = envInt("BATCH_SIZE", classify.DefaultBatchSize); err != nil {
		return envDefaults{}, err
	}
	if d.FetchTimeout, err = envDuration("FETCH_TIMEOUT", 30*time.Second); err != nil {
		return envDefaults{}, err
	}
	if d.RenderTimeout, err = envDuration("RENDER_TIMEOUT", 45*time.Second); err != nil {
		return envDefaults{}, err
	}
	if d.RenderDisabled, err = envBool("RENDER_DISABLED"); err != nil {
		return envDefaults{}, err
	}
	if d.MaxRetries, err = envInt("MAX_RETRIES", 2); err != nil {
		return envDefaults{}, err
	}
	if d.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", 60*time.Second); err != nil {
		return envDefaults{}, err
	}
	if d.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", 0); err != nil {
		return envDefaults{}, err
	}
	if d.S3PathStyle, err = envBool("S3_USE_PATH_STYLE"); err != nil {
		return envDefaults{}, err
	}
	return d, nil
}

func envString(varName, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		return v
	}
	return fallback
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(varName string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return false, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
