package provision

import (
	"context"
	"errors"
	"log/slog"
)

// State tracks how far a saga instance has progressed. Compensation is
// only reachable once the account row exists because nothing before that
// needs undoing.
type State string

const (
	StateRoleVerified   State = "ROLE_VERIFIED"
	StateAccountCreated State = "ACCOUNT_CREATED"
	StateRoleBound      State = "ROLE_BOUND"
	StateProfileCreated State = "PROFILE_CREATED"
	StateCommitted      State = "COMMITTED"
	StateCompensating   State = "COMPENSATING"
	StateFailed         State = "FAILED"
)

// ErrInternal is the opaque failure surfaced when a mid-saga storage
// error must not leak its cause to the caller.
var ErrInternal = errors.New("provision: internal error")

// step is one reversible unit of a saga. compensate may be nil for steps
// that create nothing. maskFailure replaces the step's own error with
// ErrInternal after logging it, so storage details stay out of responses.
type step struct {
	name        string
	after       State
	run         func(context.Context) error
	compensate  func(context.Context) error
	maskFailure bool
}

// saga executes steps in order and, on failure, runs the compensations of
// every completed step in reverse. The triggering error is returned; a
// failed compensation is logged at error severity and never masks it.
type saga struct {
	logger *slog.Logger
	state  State
	steps  []step
}

func newSaga(logger *slog.Logger, steps ...step) *saga {
	return &saga{logger: logger, state: StateRoleVerified, steps: steps}
}

func (s *saga) run(ctx context.Context) error {
	var done []step
	for _, st := range s.steps {
		if err := st.run(ctx); err != nil {
			s.logger.Error("provisioning step failed",
				slog.String("step", st.name),
				slog.String("state", string(s.state)),
				slog.Any("error", err),
			)
			s.compensateAll(ctx, done)
			if st.maskFailure {
				return ErrInternal
			}
			return err
		}
		s.state = st.after
		if st.compensate != nil {
			done = append(done, st)
		}
	}
	s.state = StateCommitted
	return nil
}

func (s *saga) compensateAll(ctx context.Context, done []step) {
	s.state = StateCompensating
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if err := st.compensate(ctx); err != nil {
			// Orphaned artifacts need manual remediation; the log record
			// is the only trace of them.
			s.logger.Error("provisioning compensation failed",
				slog.String("step", st.name),
				slog.Any("error", err),
			)
		}
	}
	s.state = StateFailed
}
