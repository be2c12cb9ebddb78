package service

import (
	"log/slog"

	"github.com/layer-3/keygate/core"
)

// State is the position of a ceremony attempt in its lifecycle. Idle and
// Failed are terminal; a new attempt always restarts at Idle with a fresh
// challenge.
type State int

const (
	StateIdle State = iota
	StateChallengeIssued
	StateVerified
	StateTokensIssued
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChallengeIssued:
		return "challenge_issued"
	case StateVerified:
		return "verified"
	case StateTokensIssued:
		return "tokens_issued"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// attempt tracks one ceremony attempt for logging. The taxonomy code of a
// failure is recorded here and only here; callers receive the generic
// authentication error so the wire cannot distinguish verification steps.
type attempt struct {
	kind   string
	userID string
	state  State
	log    *slog.Logger
}

func newAttempt(log *slog.Logger, kind, userID string) *attempt {
	return &attempt{kind: kind, userID: userID, state: StateIdle, log: log}
}

func (a *attempt) transition(next State) {
	a.log.Debug("ceremony state",
		"kind", a.kind,
		"user_id", a.userID,
		"from", a.state.String(),
		"to", next.String(),
	)
	a.state = next
}

// fail moves the attempt to Failed and collapses the step error into the
// generic outcome.
func (a *attempt) fail(err error) error {
	a.log.Warn("ceremony failed",
		"kind", a.kind,
		"user_id", a.userID,
		"state", a.state.String(),
		"code", core.Code(err),
	)
	a.state = StateFailed
	return core.ErrAuthenticationFailed
}
