// Package webhook provides the webhook profile: simulated users that replay
// GitHub pull_request deliveries against a CI server's webhook endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/ciload/internal/config"
	"github.com/wesleyorama2/ciload/internal/loadgen"
)

const (
	// ProfileName selects this profile on the command line.
	ProfileName = "webhook"

	// RequestName groups deliveries in statistics.
	RequestName = "github-pr"

	// Path is where GitHub delivers webhooks on Jenkins.
	Path = "/github-webhook/"

	// Event is the X-GitHub-Event of every delivery.
	Event = "pull_request"

	MinWait = 50 * time.Millisecond
	MaxWait = 200 * time.Millisecond
)

// Config is the target of the webhook profile.
type Config struct {
	Host string

	// Secret signs each body with X-Hub-Signature-256 when set.
	Secret string
}

// LoadConfig reads the webhook target from the environment.
func LoadConfig() (Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	return Config{Host: cfg.Webhook.Host, Secret: cfg.Webhook.Secret}, nil
}

// User is a loadgen.Profile that POSTs a fresh pull_request payload per task.
// The response status is not inspected here; the statistics classify it.
type User struct {
	cfg Config
}

// NewUser creates the profile for cfg.
func NewUser(cfg Config) *User {
	return &User{cfg: cfg}
}

func (u *User) Name() string { return ProfileName }

// DefaultHost is the configured webhook host.
func (u *User) DefaultHost() string { return u.cfg.Host }

func (u *User) WaitTime() loadgen.WaitTime {
	return loadgen.Between(MinWait, MaxWait)
}

func (u *User) WaitBounds() (time.Duration, time.Duration) {
	return MinWait, MaxWait
}

func (u *User) Task(ctx context.Context, vu *loadgen.VirtualUser) error {
	body, err := json.Marshal(NewPayload(vu.Rand))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, _ = vu.Do(ctx, loadgen.Request{
		Name:   RequestName,
		Method: http.MethodPost,
		Path:   Path,
		Header: u.headers(body),
		Body:   body,
	})
	return nil
}

func (u *User) headers(body []byte) http.Header {
	h := http.Header{}
	h.Set("X-GitHub-Event", Event)
	h.Set("Content-Type", "application/json")
	h.Set("X-GitHub-Delivery", uuid.NewString())
	if u.cfg.Secret != "" {
		h.Set(SignatureHeader, Sign(body, u.cfg.Secret))
	}
	return h
}
