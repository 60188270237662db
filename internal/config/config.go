// Package config loads slotbook's runtime configuration from the environment.
//
// Values come from process environment variables. Before reading them, Load
// applies .env.local and then .env from the working directory; neither file
// overrides a variable that is already set. Command line flags are applied by
// the cmd package on top of the returned Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teemow/slotbook/internal/google"
	"github.com/teemow/slotbook/internal/scheduler"
)

// DotEnvFiles are loaded by Load in this order. Earlier files win.
var DotEnvFiles = []string{".env.local", ".env"}

// Defaults for values outside the scheduling policy.
const (
	DefaultCalendarID             = "primary"
	DefaultAvailabilityWindowDays = 30
	DefaultFetchTimeout           = 10 * time.Second
	DefaultHTTPAddr               = ":8080"
	DefaultMetricsAddr            = ":9090"
	DefaultRateLimitBookPerMinute = 10
	DefaultRateLimitPrefix        = "slotbook:ratelimit"
)

// Config is the complete runtime configuration.
type Config struct {
	// CalendarID is the owner calendar queried for busy time and written to.
	CalendarID string

	// Policy is the raw working-hours template. Build it with NewPolicy.
	Policy scheduler.PolicyConfig

	// Owner is invited to every booked meeting when Owner.Email is set.
	Owner scheduler.Owner

	Credentials google.Credentials

	// AvailabilityWindowDays is the default length of an availability query.
	AvailabilityWindowDays int

	// FetchTimeout bounds each busy interval fetch. Zero disables it.
	FetchTimeout time.Duration

	// RecheckOverlap re-reads busy time right before inserting an event.
	RecheckOverlap bool

	HTTPAddr          string
	CORSAllowedOrigin string

	// TrustProxy keys the rate limiter on X-Forwarded-For. Enable it only
	// behind a proxy that sets the header.
	TrustProxy bool

	// RateLimitBookPerMinute limits POST /book per client. Zero disables it.
	RateLimitBookPerMinute int

	// RedisAddr switches the rate limiter to a shared Redis counter.
	RedisAddr       string
	RedisPassword   string
	RateLimitPrefix string

	MetricsEnabled bool
	MetricsAddr    string
}

// Load applies the dotenv files and reads the configuration from the environment.
func Load() (Config, error) {
	if err := LoadDotEnv(DotEnvFiles...); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// LoadDotEnv loads the given files that exist, without overriding variables
// already present in the environment.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", f, err)
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv reads the configuration from the process environment and
// validates it, including the scheduling policy.
func FromEnv() (Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getEnvIntOrDefault(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		CalendarID: getEnvOrDefault("GOOGLE_CALENDAR_ID", DefaultCalendarID),
		Policy: scheduler.PolicyConfig{
			Timezone:            getEnvOrDefault("TIMEZONE", scheduler.DefaultTimezone),
			WorkStartHour:       intVar("WORK_HOURS_START", scheduler.DefaultWorkStartHour),
			WorkEndHour:         intVar("WORK_HOURS_END", scheduler.DefaultWorkEndHour),
			SlotDurationMinutes: intVar("MEETING_DURATION_MINUTES", scheduler.DefaultSlotDurationMinutes),
			MinLeadMinutes:      intVar("MIN_LEAD_MINUTES", scheduler.DefaultMinLeadMinutes),
		},
		Owner: scheduler.Owner{
			Email: os.Getenv("OWNER_EMAIL"),
			Name:  getEnvOrDefault("OWNER_NAME", getEnvOrDefault("NEXT_PUBLIC_OWNER_NAME", scheduler.DefaultOwnerName)),
		},
		Credentials: google.Credentials{
			ServiceAccountEmail: os.Getenv("GOOGLE_SERVICE_ACCOUNT_EMAIL"),
			PrivateKey:          google.NormalizePrivateKey(os.Getenv("GOOGLE_PRIVATE_KEY")),
			CredentialsFile:     os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			Subject:             os.Getenv("GOOGLE_IMPERSONATE_SUBJECT"),
		},
		AvailabilityWindowDays: intVar("AVAILABILITY_WINDOW_DAYS", DefaultAvailabilityWindowDays),
		CORSAllowedOrigin:      os.Getenv("CORS_ALLOWED_ORIGIN"),
		HTTPAddr:               getEnvOrDefault("HTTP_ADDR", DefaultHTTPAddr),
		RateLimitBookPerMinute: intVar("RATE_LIMIT_BOOK_PER_MINUTE", DefaultRateLimitBookPerMinute),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RateLimitPrefix:        getEnvOrDefault("RATE_LIMIT_PREFIX", DefaultRateLimitPrefix),
		MetricsAddr:            getEnvOrDefault("METRICS_ADDR", DefaultMetricsAddr),
	}

	var err error
	if cfg.Policy.ExcludedWeekdays, err = excludedWeekdaysFromEnv(); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchTimeout, err = getEnvDurationOrDefault("FETCH_TIMEOUT", DefaultFetchTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.RecheckOverlap, err = getEnvBoolOrDefault("BOOKING_RECHECK_OVERLAP", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.TrustProxy, err = getEnvBoolOrDefault("TRUST_PROXY", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.MetricsEnabled, err = getEnvBoolOrDefault("METRICS_ENABLED", true); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration, including the scheduling policy.
// Credentials are not required here; commands that talk to Google check
// them separately.
func (c Config) Validate() error {
	if _, err := c.NewPolicy(); err != nil {
		return err
	}
	if strings.TrimSpace(c.CalendarID) == "" {
		return &scheduler.ConfigurationError{Field: "GOOGLE_CALENDAR_ID", Reason: "must not be empty"}
	}
	if c.AvailabilityWindowDays <= 0 {
		return &scheduler.ConfigurationError{Field: "AVAILABILITY_WINDOW_DAYS", Reason: fmt.Sprintf("must be positive, got %d", c.AvailabilityWindowDays)}
	}
	if c.FetchTimeout < 0 {
		return &scheduler.ConfigurationError{Field: "FETCH_TIMEOUT", Reason: "must not be negative"}
	}
	if c.RateLimitBookPerMinute < 0 {
		return &scheduler.ConfigurationError{Field: "RATE_LIMIT_BOOK_PER_MINUTE", Reason: "must not be negative"}
	}
	return nil
}

// NewPolicy builds the validated scheduling policy.
func (c Config) NewPolicy() (*scheduler.Policy, error) {
	return scheduler.NewPolicy(c.Policy)
}

// AvailabilityWindow is the default length of an availability query.
func (c Config) AvailabilityWindow() time.Duration {
	return time.Duration(c.AvailabilityWindowDays) * 24 * time.Hour
}

// excludedWeekdaysFromEnv parses EXCLUDED_WEEKDAYS. Unset means the policy
// default; set but empty means no weekday is excluded.
func excludedWeekdaysFromEnv() ([]time.Weekday, error) {
	raw, ok := os.LookupEnv("EXCLUDED_WEEKDAYS")
	if !ok {
		return nil, nil
	}
	days := []time.Weekday{}
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		wd, err := scheduler.ParseWeekday(part)
		if err != nil {
			return nil, &scheduler.ConfigurationError{Field: "EXCLUDED_WEEKDAYS", Reason: err.Error()}
		}
		days = append(days, wd)
	}
	return days, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of an environment variable or a default value.
func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, &scheduler.ConfigurationError{Field: key, Reason: fmt.Sprintf("%q is not an integer", value)}
	}
	return parsed, nil
}

// getEnvBoolOrDefault returns the boolean value of an environment variable or a default value.
func getEnvBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, &scheduler.ConfigurationError{Field: key, Reason: fmt.Sprintf("%q is not a boolean", value)}
	}
	return parsed, nil
}

// getEnvDurationOrDefault returns the duration value of an environment variable or a default value.
// Bare integers are read as seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, &scheduler.ConfigurationError{Field: key, Reason: fmt.Sprintf("%q is not a duration", value)}
	}
	return parsed, nil
}
