package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env file loaded by the process runner / godotenv).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Retell     ProviderConfig
	Vapi       ProviderConfig
	Automation AutomationConfig
	Stripe     StripeConfig
	Sentry     SentryConfig
	Usage      UsageConfig
	Phone      PhoneConfig
	Initiate   InitiateConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// ProviderConfig holds credentials for one voice-AI call provider.
// Every field is optional: an empty WebhookSecret disables signature checks for
// that provider, an empty APIKey disables outbound call placement through it.
type ProviderConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

type AutomationConfig struct {
	Token string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceStarter  string
	PriceGrowth   string
	PriceScale    string
}

type SentryConfig struct {
	DSN string
}

type UsageConfig struct {
	// Timezone decides where "today" ends for daily usage rows. It never uses the call's own timestamp.
	Timezone      string
	Location      *time.Location
	AggregateCron string
}

type PhoneConfig struct {
	// MatchStrategy is "exact" (raw string equality) or "e164".
	MatchStrategy string
	DefaultRegion string
}

type InitiateConfig struct {
	RatePerMinute int
	Burst         int
}

const (
	defaultRetellBaseURL = "https://api.retellai.com"
	defaultVapiBaseURL   = "https://api.vapi.ai"
	defaultAggregateCron = "15 0 * * *"
)

// Load reads the process environment, applies defaults and validates the result.
// Every problem found is reported at once.
func Load() (Config, error) {
	var c Config
	e := &envReader{lookup: os.LookupEnv}

	c.App.Env = e.str("APP_ENV")
	c.App.LogLevel = e.str("LOG_LEVEL")
	c.App.Port = e.requiredInt("APP_PORT")

	c.DB.Host = e.str("DB_HOST")
	c.DB.Port = e.requiredInt("DB_PORT")
	c.DB.User = e.str("DB_USER")
	c.DB.Password = e.secret("DB_PASSWORD")
	c.DB.Name = e.str("DB_NAME")
	c.DB.SSLMode = e.str("DB_SSLMODE")
	c.DB.AutoMigrate = e.boolean("DB_AUTO_MIGRATE")

	c.Redis.Host = e.str("REDIS_HOST")
	c.Redis.Port = e.requiredInt("REDIS_PORT")
	c.Redis.Password = e.secret("REDIS_PASSWORD")
	c.Redis.DB = e.integer("REDIS_DB")

	c.Auth.JWTSecret = e.secret("JWT_SECRET")
	c.Auth.JWTIssuer = e.str("JWT_ISSUER")
	c.Auth.JWTAudience = e.str("JWT_AUDIENCE")
	c.Auth.AccessTokenTTL = e.duration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = e.duration("JWT_REFRESH_TTL")

	c.Retell = e.provider("RETELL")
	c.Vapi = e.provider("VAPI")
	c.Automation.Token = e.secret("AUTOMATION_WEBHOOK_TOKEN")

	c.Stripe.SecretKey = e.secret("STRIPE_SECRET_KEY")
	c.Stripe.WebhookSecret = e.secret("STRIPE_WEBHOOK_SECRET")
	c.Stripe.PriceStarter = e.str("STRIPE_PRICE_STARTER")
	c.Stripe.PriceGrowth = e.str("STRIPE_PRICE_GROWTH")
	c.Stripe.PriceScale = e.str("STRIPE_PRICE_SCALE")

	c.Sentry.DSN = e.str("SENTRY_DSN")

	c.Usage.Timezone = e.str("USAGE_TIMEZONE")
	c.Usage.AggregateCron = e.str("USAGE_AGGREGATE_CRON")

	c.Phone.MatchStrategy = strings.ToLower(e.str("PHONE_MATCH_STRATEGY"))
	c.Phone.DefaultRegion = strings.ToUpper(e.str("PHONE_DEFAULT_REGION"))

	c.Initiate.RatePerMinute = e.integer("INITIATE_RATE_PER_MINUTE")
	c.Initiate.Burst = e.integer("INITIATE_BURST")

	if err := joinErrors(e.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills env-dependent defaults in place.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.App.Env == "":
		errs = append(errs, errors.New("APP_ENV is required"))
	case !oneOf(c.App.Env, "local", "dev", "staging", "production"):
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	errs = checkPort(errs, "APP_PORT", c.App.Port)
	if c.App.LogLevel != "" && !oneOf(strings.ToLower(c.App.LogLevel), "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}

	errs = required(errs, "DB_HOST", c.DB.Host)
	errs = checkPort(errs, "DB_PORT", c.DB.Port)
	errs = required(errs, "DB_USER", c.DB.User)
	errs = required(errs, "DB_NAME", c.DB.Name)
	switch {
	case c.DB.SSLMode == "" && c.IsProduction():
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	case c.DB.SSLMode == "":
		c.DB.SSLMode = "disable"
	case !oneOf(c.DB.SSLMode, "disable", "require", "verify-ca", "verify-full"):
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	errs = required(errs, "REDIS_HOST", c.Redis.Host)
	errs = checkPort(errs, "REDIS_PORT", c.Redis.Port)
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	errs = required(errs, "JWT_SECRET", c.Auth.JWTSecret)
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// The token guards lead writes and /usage/aggregate; only local and dev may run without it.
	if oneOf(c.App.Env, "staging", "production") && c.Automation.Token == "" {
		errs = append(errs, fmt.Errorf("AUTOMATION_WEBHOOK_TOKEN is required in %s", c.App.Env))
	}

	if c.Retell.BaseURL == "" {
		c.Retell.BaseURL = defaultRetellBaseURL
	}
	if c.Vapi.BaseURL == "" {
		c.Vapi.BaseURL = defaultVapiBaseURL
	}

	if c.Usage.Timezone == "" {
		c.Usage.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(c.Usage.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("USAGE_TIMEZONE must be an IANA zone name, got %q", c.Usage.Timezone))
	} else {
		c.Usage.Location = loc
	}
	switch strings.ToLower(c.Usage.AggregateCron) {
	case "":
		c.Usage.AggregateCron = defaultAggregateCron
	case "off", "disabled":
		c.Usage.AggregateCron = ""
	}

	switch c.Phone.MatchStrategy {
	case "":
		c.Phone.MatchStrategy = "exact"
	case "exact", "e164":
	default:
		errs = append(errs, fmt.Errorf("PHONE_MATCH_STRATEGY must be one of exact, e164, got %q", c.Phone.MatchStrategy))
	}
	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = "US"
	}

	if c.Initiate.RatePerMinute <= 0 {
		c.Initiate.RatePerMinute = 30
	}
	if c.Initiate.Burst <= 0 {
		c.Initiate.Burst = 5
	}

	return joinErrors(errs)
}

// Warnings lists configuration gaps that leave an endpoint fail-open.
// They are not errors: provider secrets may be absent in every env and the
// automation token in local and dev, but the gap must be visible in the startup log.
func (c Config) Warnings() []string {
	var out []string
	if c.Retell.WebhookSecret == "" {
		out = append(out, "RETELL_WEBHOOK_SECRET not set: retell webhook signatures are not verified")
	}
	if c.Vapi.WebhookSecret == "" {
		out = append(out, "VAPI_WEBHOOK_SECRET not set: vapi webhook signatures are not verified")
	}
	if c.Automation.Token == "" {
		out = append(out, "AUTOMATION_WEBHOOK_TOKEN not set: /webhooks/automation and /usage/aggregate accept unauthenticated calls")
	}
	if c.Stripe.WebhookSecret == "" {
		out = append(out, "STRIPE_WEBHOOK_SECRET not set: stripe webhook is disabled")
	}
	if c.Retell.APIKey == "" {
		out = append(out, "RETELL_API_KEY not set: outbound calls through retell are disabled")
	}
	if c.Vapi.APIKey == "" {
		out = append(out, "VAPI_API_KEY not set: outbound calls through vapi are disabled")
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func required(errs []error, key, v string) []error {
	if v == "" {
		return append(errs, fmt.Errorf("%s is required", key))
	}
	return errs
}

func checkPort(errs []error, key string, port int) []error {
	if port <= 0 || port > 65535 {
		return append(errs, fmt.Errorf("%s must be a valid port, got %d", key, port))
	}
	return errs
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
