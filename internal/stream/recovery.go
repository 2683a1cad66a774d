package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// RecoveryPolicy configures the two-tier reopen delay. The delays are fixed,
// not exponential.
type RecoveryPolicy struct {
	// InitialDelay is waited once after the failure, before the first reopen.
	InitialDelay time.Duration `json:"initial_delay"`
	// RetryDelay is waited before every further reopen.
	RetryDelay time.Duration `json:"retry_delay"`
	// MaxFailures ends recovery with RecoveryExhausted after this many
	// consecutive failed attempts. Zero retries for as long as the consumer
	// stays attached.
	MaxFailures int `json:"max_failures"`
}

// DefaultRecoveryPolicy returns the 0.5s/1.0s policy with no retry ceiling.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		InitialDelay: 500 * time.Millisecond,
		RetryDelay:   time.Second,
	}
}

// RecoveryState is the failure bookkeeping attached to a session.
type RecoveryState struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastAttemptAt       time.Time `json:"last_attempt_at,omitzero"`
}

// AttemptFunc reopens a source and captures one frame from it.
type AttemptFunc func(ctx context.Context) (Frame, error)

// RecoveryController retries an AttemptFunc with the policy's delays until it
// succeeds, the context ends, or the retry ceiling is hit.
type RecoveryController struct {
	policy    RecoveryPolicy
	logger    logging.Logger
	onAttempt func(state RecoveryState, err error)

	mu    sync.Mutex
	state RecoveryState
}

// NewRecoveryController creates a controller with the given policy.
func NewRecoveryController(policy RecoveryPolicy, logger logging.Logger) *RecoveryController {
	if logger == nil {
		logger = logging.GetLogger("stream")
	}
	return &RecoveryController{policy: policy, logger: logger}
}

// Policy returns the controller's policy.
func (rc *RecoveryController) Policy() RecoveryPolicy {
	return rc.policy
}

// State returns a snapshot of the recovery state.
func (rc *RecoveryController) State() RecoveryState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Reset clears the consecutive failure count.
func (rc *RecoveryController) Reset() {
	rc.mu.Lock()
	rc.state.ConsecutiveFailures = 0
	rc.mu.Unlock()
}

// Recover waits InitialDelay and calls attempt, then keeps calling it every
// RetryDelay while it fails. It returns the first frame of the successful
// attempt, ctx.Err() once ctx is done, or RecoveryExhausted.
func (rc *RecoveryController) Recover(ctx context.Context, attempt AttemptFunc) (Frame, error) {
	delay := rc.policy.InitialDelay
	for {
		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}

		rc.mu.Lock()
		rc.state.LastAttemptAt = time.Now()
		rc.mu.Unlock()

		frame, err := attempt(ctx)
		if err == nil {
			rc.Reset()
			rc.notify(nil)
			rc.logger.Info("Source recovered")
			return frame, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		rc.mu.Lock()
		rc.state.ConsecutiveFailures++
		failures := rc.state.ConsecutiveFailures
		rc.mu.Unlock()
		rc.notify(err)

		rc.logger.Warn("Recovery attempt failed", "consecutive_failures", failures, "error", err)

		if rc.policy.MaxFailures > 0 && failures >= rc.policy.MaxFailures {
			return nil, NewError(KindRecoveryExhausted,
				fmt.Sprintf("gave up after %d consecutive failures", failures), err)
		}
		delay = rc.policy.RetryDelay
	}
}

func (rc *RecoveryController) notify(err error) {
	if rc.onAttempt != nil {
		rc.onAttempt(rc.State(), err)
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
