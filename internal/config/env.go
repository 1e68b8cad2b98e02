package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed values from the environment and collects every parse error.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) raw(key string) string {
	v, _ := e.lookup(key)
	return v
}

// str trims surrounding whitespace. Use secret for values where spaces may be significant.
func (e *envReader) str(key string) string { return strings.TrimSpace(e.raw(key)) }

func (e *envReader) secret(key string) string { return e.raw(key) }

func (e *envReader) fail(key, kind, v string) {
	e.errs = append(e.errs, fmt.Errorf("%s must be %s, got %q", key, kind, v))
}

func (e *envReader) requiredInt(key string) int {
	if e.str(key) == "" {
		e.errs = append(e.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	return e.integer(key)
}

// integer returns 0 when key is unset.
func (e *envReader) integer(key string) int {
	v := e.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, "an integer", v)
	}
	return n
}

func (e *envReader) boolean(key string) bool {
	v := e.str(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, "a boolean", v)
	}
	return b
}

// duration accepts Go duration strings such as "15m". Unset means 0, which Validate defaults.
func (e *envReader) duration(key string) time.Duration {
	v := e.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, "a duration", v)
	}
	return d
}

// provider reads <PREFIX>_API_KEY, <PREFIX>_WEBHOOK_SECRET and <PREFIX>_BASE_URL.
func (e *envReader) provider(prefix string) ProviderConfig {
	return ProviderConfig{
		APIKey:        e.secret(prefix + "_API_KEY"),
		WebhookSecret: e.secret(prefix + "_WEBHOOK_SECRET"),
		BaseURL:       e.str(prefix + "_BASE_URL"),
	}
}
