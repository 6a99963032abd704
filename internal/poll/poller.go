// ABOUTME: Job status poller with a step-wise backoff, a request cap, and a wall-clock ceiling.
// ABOUTME: Sleeps are cancellable through the context; outcomes are tagged, never panics.

package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/audit-gateway/internal/backend"
)

// Defaults for a Poller.
const (
	DefaultMaxRequests = 20
	DefaultTimeout     = 3 * time.Hour
)

var (
	// ErrTimeout indicates the wall-clock ceiling elapsed before a terminal status.
	ErrTimeout = errors.New("polling timed out")

	// ErrInterrupted indicates the request cap was reached before a terminal status.
	ErrInterrupted = errors.New("polling interrupted at request cap")

	// ErrQuery indicates a status query failed; polling stops at the first one.
	ErrQuery = errors.New("status query failed")
)

// State tags a poll outcome.
type State int

const (
	Completed State = iota
	Failed
	TimedOut
	Interrupted
	Errored
)

func (s State) String() string {
	switch s {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Interrupted:
		return "interrupted"
	default:
		return "error"
	}
}

// Outcome is the terminal result of one poll cycle.
type Outcome struct {
	State    State
	Response *backend.TaskStatus // last status response, if any
	Requests int                 // status queries actually sent
	Err      error               // set for TimedOut, Interrupted and Errored
}

// Succeeded reports whether the backend reported completion.
func (o Outcome) Succeeded() bool {
	return o.State == Completed
}

// Interval returns the wait after request n (1-indexed).
func Interval(n int) time.Duration {
	switch {
	case n <= 3:
		return 3 * time.Second
	case n <= 10:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// StatusChecker queries task status. *backend.Client satisfies it.
type StatusChecker interface {
	TaskStatus(ctx context.Context, token string, sessionID int64, analysisTypeID int) (*backend.TaskStatus, error)
}

// Config holds configuration for a Poller.
type Config struct {
	Checker     StatusChecker
	MaxRequests int           // iteration cap; reaching it ends the cycle as interrupted
	Timeout     time.Duration // wall-clock ceiling per cycle
	Logger      *slog.Logger

	// Sleep and Now are injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Poller runs poll cycles against a StatusChecker.
type Poller struct {
	checker     StatusChecker
	maxRequests int
	timeout     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	logger      *slog.Logger
}

// New creates a Poller, applying defaults for zero values.
func New(cfg Config) *Poller {
	p := &Poller{
		checker:     cfg.Checker,
		maxRequests: cfg.MaxRequests,
		timeout:     cfg.Timeout,
		sleep:       cfg.Sleep,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if p.maxRequests <= 0 {
		p.maxRequests = DefaultMaxRequests
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "poll")
	return p
}

// Poll queries the status of sessionID until the backend reports completed
// or failed, the request cap is reached, the wall-clock ceiling passes, a
// query fails, or ctx is cancelled.
//
// The cap is checked before each query, so iteration MaxRequests returns
// Interrupted without sending a request. There is no sleep after a terminal
// response.
func (p *Poller) Poll(ctx context.Context, sessionID int64, token string, analysisTypeID int) Outcome {
	start := p.now()
	logger := p.logger.With("session_id", sessionID, "analysis_type_id", analysisTypeID)

	for n := 1; ; n++ {
		if n >= p.maxRequests {
			logger.Warn("polling interrupted", "request_count", n)
			return Outcome{
				State:    Interrupted,
				Requests: n - 1,
				Err:      fmt.Errorf("%w: session %d after %d requests", ErrInterrupted, sessionID, n-1),
			}
		}

		status, err := p.checker.TaskStatus(ctx, token, sessionID, analysisTypeID)
		if err != nil {
			logger.Warn("status query failed", "request_count", n, "error", err)
			return Outcome{
				State:    Errored,
				Requests: n,
				Err:      fmt.Errorf("%w: session %d: %w", ErrQuery, sessionID, err),
			}
		}
		logger.Debug("status polled", "request_count", n, "status", status.Status)

		switch status.Status {
		case backend.TaskCompleted:
			logger.Info("polling completed", "request_count", n, "elapsed", p.now().Sub(start))
			return Outcome{State: Completed, Response: status, Requests: n}
		case backend.TaskFailed:
			logger.Warn("task reported failure", "request_count", n)
			return Outcome{State: Failed, Response: status, Requests: n}
		}

		if elapsed := p.now().Sub(start); elapsed > p.timeout {
			logger.Warn("polling timed out", "request_count", n, "elapsed", elapsed)
			return Outcome{
				State:    TimedOut,
				Response: status,
				Requests: n,
				Err:      fmt.Errorf("%w: session %d after %s", ErrTimeout, sessionID, elapsed.Round(time.Second)),
			}
		}

		if err := p.sleep(ctx, Interval(n)); err != nil {
			return Outcome{
				State:    Errored,
				Response: status,
				Requests: n,
				Err:      fmt.Errorf("%w: session %d: %w", ErrQuery, sessionID, err),
			}
		}
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
