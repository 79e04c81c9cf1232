// Package config loads the target settings of the built-in profiles.
// Precedence: defaults < environment variables.
package config

// Config holds everything the built-in profiles read from the environment.
type Config struct {
	Jenkins Jenkins
	Webhook Webhook
	Logging Logging
}

// Jenkins holds the build-trigger target.
type Jenkins struct {
	APIToken string
	Username string
	Host     string
	JobPath  string

	// BuildParams is the raw "K=V,K2=V2" list. Empty means a plain build.
	BuildParams string
}

// Webhook holds the webhook receiver target.
type Webhook struct {
	Host   string
	Secret string
}

// Logging holds log settings.
type Logging struct {
	Level string
}

// Defaults returns a Config with sensible defaults for a local Jenkins.
func Defaults() Config {
	return Config{
		Jenkins: Jenkins{
			APIToken: "jenkins_token",
			Host:     "http://localhost:8080",
			JobPath:  "/job/test-triggers/job/simple/build",
		},
		Webhook: Webhook{
			Host: "http://localhost:8080",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}
