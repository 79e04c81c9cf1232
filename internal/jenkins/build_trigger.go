// Package jenkins provides the build-trigger profile: simulated users that
// repeatedly start a pipeline build on a Jenkins-like server.
package jenkins

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wesleyorama2/ciload/internal/config"
	"github.com/wesleyorama2/ciload/internal/loadgen"
)

const (
	// ProfileName selects this profile on the command line.
	ProfileName = "build-trigger"

	// RequestName groups build triggers in statistics.
	RequestName = "/build-pipeline"

	MinWait = 1 * time.Second
	MaxWait = 2 * time.Second
)

// BuildTriggerConfig is the target of the build-trigger profile.
// It is read once at startup and never changes during a run.
type BuildTriggerConfig struct {
	APIToken string
	Username string
	Host     string
	JobPath  string

	// Params switches the trigger to buildWithParameters when non-empty.
	Params url.Values
}

// LoadBuildTriggerConfig reads the build-trigger target from the environment.
func LoadBuildTriggerConfig() (BuildTriggerConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return BuildTriggerConfig{}, err
	}
	return NewBuildTriggerConfig(cfg.Jenkins)
}

// NewBuildTriggerConfig converts loaded settings into a BuildTriggerConfig.
func NewBuildTriggerConfig(j config.Jenkins) (BuildTriggerConfig, error) {
	params, err := config.ParseParams(j.BuildParams)
	if err != nil {
		return BuildTriggerConfig{}, fmt.Errorf("build params: %w", err)
	}
	return BuildTriggerConfig{
		APIToken: j.APIToken,
		Username: j.Username,
		Host:     j.Host,
		JobPath:  j.JobPath,
		Params:   params,
	}, nil
}

// TriggerPath is the path POSTed on every task. With parameters, a trailing
// /build becomes /buildWithParameters.
func (c BuildTriggerConfig) TriggerPath() string {
	if len(c.Params) == 0 {
		return c.JobPath
	}
	if base, ok := strings.CutSuffix(c.JobPath, "/build"); ok {
		return base + "/buildWithParameters"
	}
	return c.JobPath
}

// Auth returns the basic credentials sent with every trigger. Without a
// username the token is the only credential and goes in the user slot.
func (c BuildTriggerConfig) Auth() *loadgen.BasicAuth {
	if c.Username == "" {
		return &loadgen.BasicAuth{Username: c.APIToken}
	}
	return &loadgen.BasicAuth{Username: c.Username, Password: c.APIToken}
}

// BuildTriggerUser is a loadgen.Profile that POSTs to the job's build path.
type BuildTriggerUser struct {
	cfg  BuildTriggerConfig
	body []byte
}

// NewBuildTriggerUser creates the profile for cfg.
func NewBuildTriggerUser(cfg BuildTriggerConfig) *BuildTriggerUser {
	u := &BuildTriggerUser{cfg: cfg}
	if len(cfg.Params) > 0 {
		u.body = []byte(cfg.Params.Encode())
	}
	return u
}

func (u *BuildTriggerUser) Name() string { return ProfileName }

// DefaultHost is the configured Jenkins host.
func (u *BuildTriggerUser) DefaultHost() string { return u.cfg.Host }

func (u *BuildTriggerUser) WaitTime() loadgen.WaitTime {
	return loadgen.Between(MinWait, MaxWait)
}

func (u *BuildTriggerUser) WaitBounds() (time.Duration, time.Duration) {
	return MinWait, MaxWait
}

// OnStart logs the host the user is about to hit.
func (u *BuildTriggerUser) OnStart(ctx context.Context, vu *loadgen.VirtualUser) error {
	vu.Logger.Info("starting user", "profile", ProfileName, "host", vu.Host)
	return nil
}

// Task triggers one build. Jenkins answers 201 or 302 on success; anything
// else is logged once. Transport errors are left to the statistics.
func (u *BuildTriggerUser) Task(ctx context.Context, vu *loadgen.VirtualUser) error {
	req := loadgen.Request{
		Name:   RequestName,
		Method: http.MethodPost,
		Path:   u.cfg.TriggerPath(),
		Auth:   u.cfg.Auth(),
	}
	if u.body != nil {
		req.Body = u.body
		req.Header = http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}
	}

	resp, err := vu.Do(ctx, req)
	if err != nil {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusFound:
	default:
		vu.Logger.Warn("failed to trigger build", "status", resp.StatusCode)
	}
	return nil
}
