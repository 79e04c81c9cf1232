package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Load returns a Config using the hierarchy: defaults < ENV.
func Load() (*Config, error) {
	cfg := Defaults()

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadEnv overlays environment variables onto cfg.
// The Jenkins target and credentials take any set value, even an empty one;
// the defaults apply only when they are unset. The rest override only when
// non-empty.
func loadEnv(cfg *Config) {
	lookupString(&cfg.Jenkins.APIToken, "JENKINS_API_TOKEN")
	lookupString(&cfg.Jenkins.Username, "JENKINS_USERNAME")
	lookupString(&cfg.Jenkins.Host, "JENKINS_HOST")
	lookupString(&cfg.Jenkins.JobPath, "JENKINS_JOB_PATH")
	setString(&cfg.Jenkins.BuildParams, "JENKINS_BUILD_PARAMS")
	setString(&cfg.Webhook.Host, "WEBHOOK_HOST")
	lookupString(&cfg.Webhook.Secret, "GITHUB_WEBHOOK_SECRET")
	setString(&cfg.Logging.Level, "CILOAD_LOG_LEVEL")
}

func validate(cfg *Config) error {
	if err := validateHost("JENKINS_HOST", cfg.Jenkins.Host); err != nil {
		return err
	}
	if err := validateHost("WEBHOOK_HOST", cfg.Webhook.Host); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Jenkins.JobPath, "/") {
		return fmt.Errorf("JENKINS_JOB_PATH must start with /: %q", cfg.Jenkins.JobPath)
	}
	if _, err := ParseParams(cfg.Jenkins.BuildParams); err != nil {
		return fmt.Errorf("JENKINS_BUILD_PARAMS: %w", err)
	}
	return nil
}

func validateHost(key, host string) error {
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must start with http:// or https://: %q", key, host)
	}
	return nil
}

// ParseParams parses a "K=V,K2=V2" list into form values.
// Blank entries are skipped; an entry without "=" or with an empty key is an error.
func ParseParams(raw string) (url.Values, error) {
	values := url.Values{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want KEY=VALUE", pair)
		}
		values.Add(key, strings.TrimSpace(value))
	}
	return values, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func lookupString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
