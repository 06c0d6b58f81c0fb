package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sellerforge/listing-checker/internal/decision"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Fetch    FetchConfig
	Pricing  PricingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type BrowserConfig struct {
	Headless       bool
	ProfileDir     string
	NavTimeout     time.Duration
	UserAgent      string
	TimezoneID     string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
}

type FetchConfig struct {
	HardTimeout  time.Duration
	PaceMinDelay time.Duration
	PaceMaxDelay time.Duration
}

// PricingConfig carries the evaluation parameters shared across batches.
// Tolerances are yen thresholds per item-price digit bucket.
type PricingConfig struct {
	BuyMismatchYen  float64
	CustomsFixedYen float64
	Multipliers     map[string]float64
	Tolerances      map[string]decision.ToleranceRule
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ProfileDir:     getEnvOrDefault("BROWSER_PROFILE_DIR", ".listing-checker-profile"),
			NavTimeout:     getDurationOrDefault("BROWSER_NAV_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
		},
		Fetch: FetchConfig{
			HardTimeout:  getDurationOrDefault("FETCH_HARD_TIMEOUT", 60*time.Second),
			PaceMinDelay: getDurationOrDefault("FETCH_PACE_MIN", 100*time.Millisecond),
			PaceMaxDelay: getDurationOrDefault("FETCH_PACE_MAX", 400*time.Millisecond),
		},
		Pricing: PricingConfig{
			BuyMismatchYen:  getFloatOrDefault("PRICING_BUY_MISMATCH_YEN", 300),
			CustomsFixedYen: getFloatOrDefault("PRICING_CUSTOMS_FIXED_YEN", 150),
			Multipliers: map[string]float64{
				"US": getFloatOrDefault("PRICING_MULTIPLIER_US", 1.692),
				"CA": getFloatOrDefault("PRICING_MULTIPLIER_CA", 1.56),
				"MX": getFloatOrDefault("PRICING_MULTIPLIER_MX", 2.463),
			},
			Tolerances: map[string]decision.ToleranceRule{
				"US": toleranceFromEnv("US", 2000, 3000, 5000),
				"CA": toleranceFromEnv("CA", 2200, 3300, 5400),
				"MX": toleranceFromEnv("MX", 1400, 2100, 3500),
			},
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Fetch.HardTimeout <= 0 {
		return fmt.Errorf("FETCH_HARD_TIMEOUT must be positive")
	}

	if c.Fetch.PaceMinDelay > c.Fetch.PaceMaxDelay {
		return fmt.Errorf("FETCH_PACE_MIN cannot be greater than FETCH_PACE_MAX")
	}

	if c.Pricing.BuyMismatchYen < 0 {
		return fmt.Errorf("PRICING_BUY_MISMATCH_YEN must be non-negative")
	}

	if c.Pricing.CustomsFixedYen < 0 {
		return fmt.Errorf("PRICING_CUSTOMS_FIXED_YEN must be non-negative")
	}

	for country, rule := range c.Pricing.Tolerances {
		if !rule.Valid() {
			return fmt.Errorf("tolerance rule for %s is invalid", country)
		}
	}

	return nil
}

// CountryConfig assembles the decision-engine parameters for one country
// with the given JPY-per-unit rate.
func (c *Config) CountryConfig(country string, fx float64) (decision.CountryConfig, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	mult, ok := c.Pricing.Multipliers[country]
	if !ok {
		return decision.CountryConfig{}, fmt.Errorf("unsupported country %q", country)
	}
	rule, ok := c.Pricing.Tolerances[country]
	if !ok {
		return decision.CountryConfig{}, fmt.Errorf("no tolerance rule for country %q", country)
	}
	return decision.CountryConfig{
		Country:         country,
		FXJPYPerUnit:    fx,
		Multiplier:      mult,
		Tolerance:       rule,
		BuyMismatchYen:  c.Pricing.BuyMismatchYen,
		CustomsFixedYen: c.Pricing.CustomsFixedYen,
	}, nil
}

func toleranceFromEnv(country string, d4, d5, d6 float64) decision.ToleranceRule {
	v4 := getFloatOrDefault("PRICING_TOL_"+country+"_4D", d4)
	v5 := getFloatOrDefault("PRICING_TOL_"+country+"_5D", d5)
	v6 := getFloatOrDefault("PRICING_TOL_"+country+"_6D", d6)
	return decision.ToleranceRule{
		UpTo4Digits:   &v4,
		FiveDigits:    &v5,
		SixPlusDigits: &v6,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
