package config

import (
	"strings"
	"testing"
)

func validConfig(env string) Config {
	return Config{
		App:        AppConfig{Env: env, Port: 8080},
		DB:         DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "leads"},
		Redis:      RedisConfig{Host: "localhost", Port: 6379},
		Auth:       AuthConfig{JWTSecret: "secret", JWTIssuer: "iss", JWTAudience: "aud"},
		Automation: AutomationConfig{Token: "tok"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_AutomationTokenRequiredOutsideLocal(t *testing.T) {
	for _, env := range []string{"staging", "production"} {
		c := validConfig(env)
		c.DB.SSLMode = "require"
		if err := c.Validate(); err != nil {
			t.Fatalf("%s: unexpected error: %v", env, err)
		}

		c.Automation.Token = ""
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), "AUTOMATION_WEBHOOK_TOKEN") {
			t.Fatalf("%s: expected automation token error, got %v", env, err)
		}
	}

	for _, env := range []string{"local", "dev"} {
		c := validConfig(env)
		c.Automation.Token = ""
		if err := c.Validate(); err != nil {
			t.Fatalf("%s: token should be optional, got %v", env, err)
		}
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Phone.MatchStrategy != "exact" {
		t.Fatalf("expected exact phone matching by default, got %q", c.Phone.MatchStrategy)
	}
	if c.Usage.Location == nil || c.Usage.Location.String() != "UTC" {
		t.Fatalf("expected UTC usage location, got %v", c.Usage.Location)
	}
	if c.Retell.BaseURL != defaultRetellBaseURL || c.Vapi.BaseURL != defaultVapiBaseURL {
		t.Fatalf("expected provider base url defaults, got %q %q", c.Retell.BaseURL, c.Vapi.BaseURL)
	}
}

func TestValidate_RejectsUnknownPhoneStrategy(t *testing.T) {
	c := validConfig("local")
	c.Phone.MatchStrategy = "fuzzy"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "PHONE_MATCH_STRATEGY") {
		t.Fatalf("expected phone strategy error, got %v", err)
	}
}

func TestValidate_RejectsUnknownTimezone(t *testing.T) {
	c := validConfig("local")
	c.Usage.Timezone = "Mars/Olympus"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestWarnings_ListsFailOpenSecrets(t *testing.T) {
	c := validConfig("local")
	c.Automation.Token = ""
	ws := c.Warnings()
	if len(ws) == 0 {
		t.Fatalf("expected warnings for missing secrets")
	}
	if !strings.Contains(strings.Join(ws, "\n"), "/usage/aggregate") {
		t.Fatalf("expected the aggregation endpoint to be named, got %v", ws)
	}

	c.Retell.WebhookSecret = "r"
	c.Vapi.WebhookSecret = "v"
	c.Automation.Token = "t"
	c.Stripe.WebhookSecret = "s"
	c.Retell.APIKey = "rk"
	c.Vapi.APIKey = "vk"
	if ws := c.Warnings(); len(ws) != 0 {
		t.Fatalf("expected no warnings, got %v", ws)
	}
}

func TestValidate_AggregateCron(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Usage.AggregateCron != defaultAggregateCron {
		t.Fatalf("expected default cron, got %q", c.Usage.AggregateCron)
	}

	c = validConfig("local")
	c.Usage.AggregateCron = "off"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Usage.AggregateCron != "" {
		t.Fatalf("expected cron disabled, got %q", c.Usage.AggregateCron)
	}
}

func TestEnvReader(t *testing.T) {
	env := map[string]string{
		"DB_AUTO_MIGRATE": "true",
		"REDIS_DB":        " 2 ",
		"BAD_BOOL":        "sometimes",
		"BAD_TTL":         "forever",
		"SECRET":          " padded ",
		"VAPI_API_KEY":    "k",
		"VAPI_BASE_URL":   " https://vapi.test ",
	}
	e := &envReader{lookup: func(k string) (string, bool) { v, ok := env[k]; return v, ok }}

	if !e.boolean("DB_AUTO_MIGRATE") || e.boolean("UNSET") {
		t.Fatalf("boolean parsing")
	}
	if got := e.integer("REDIS_DB"); got != 2 {
		t.Fatalf("integer: got %d", got)
	}
	if got := e.secret("SECRET"); got != " padded " {
		t.Fatalf("secret must not be trimmed, got %q", got)
	}
	if p := e.provider("VAPI"); p.APIKey != "k" || p.BaseURL != "https://vapi.test" || p.WebhookSecret != "" {
		t.Fatalf("provider: %+v", p)
	}
	if len(e.errs) != 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}

	e.boolean("BAD_BOOL")
	e.duration("BAD_TTL")
	e.requiredInt("APP_PORT")
	if len(e.errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", e.errs)
	}
	for i, key := range []string{"BAD_BOOL", "BAD_TTL", "APP_PORT"} {
		if !strings.Contains(e.errs[i].Error(), key) {
			t.Fatalf("error %d should name %s: %v", i, key, e.errs[i])
		}
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	for k, v := range map[string]string{
		"APP_ENV":              "local",
		"APP_PORT":             "8080",
		"DB_HOST":              "localhost",
		"DB_PORT":              "5432",
		"DB_USER":              "postgres",
		"DB_NAME":              "leads",
		"DB_AUTO_MIGRATE":      "1",
		"REDIS_HOST":           "localhost",
		"REDIS_PORT":           "6379",
		"JWT_SECRET":           "secret",
		"RETELL_API_KEY":       "rk",
		"USAGE_AGGREGATE_CRON": "off",
		"PHONE_DEFAULT_REGION": "gb",
	} {
		t.Setenv(k, v)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.DB.AutoMigrate || c.Retell.APIKey != "rk" || c.Phone.DefaultRegion != "GB" {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Usage.AggregateCron != "" {
		t.Fatalf("cron should be disabled, got %q", c.Usage.AggregateCron)
	}

	t.Setenv("REDIS_PORT", "six")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Fatalf("expected REDIS_PORT error, got %v", err)
	}
}
