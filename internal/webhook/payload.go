package webhook

import (
	"fmt"
	"math/rand"
)

// Zen is the fixed zen line GitHub puts in every delivery.
const Zen = "Keep it logically awesome"

const (
	// MaxRepo bounds the n in perf/repo-<n>.
	MaxRepo = 2000

	// MaxPRNumber bounds pull_request.number.
	MaxPRNumber = 50000
)

// Actions are the pull_request actions a payload is drawn from.
var Actions = []string{"opened", "synchronize", "reopened"}

// Payload is the subset of a GitHub pull_request event the receiver routes on.
type Payload struct {
	Zen         string      `json:"zen"`
	Repository  Repository  `json:"repository"`
	PullRequest PullRequest `json:"pull_request"`
	Action      string      `json:"action"`
}

type Repository struct {
	FullName string `json:"full_name"`
}

type PullRequest struct {
	Number int `json:"number"`
}

// NewPayload draws a fresh payload from rng.
func NewPayload(rng *rand.Rand) Payload {
	return Payload{
		Zen:         Zen,
		Repository:  Repository{FullName: fmt.Sprintf("perf/repo-%d", 1+rng.Intn(MaxRepo))},
		PullRequest: PullRequest{Number: 1 + rng.Intn(MaxPRNumber)},
		Action:      Actions[rng.Intn(len(Actions))],
	}
}
