package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/thermoctl/internal/link"
	"github.com/danmuck/thermoctl/internal/observability"
	"github.com/danmuck/thermoctl/internal/protocol"
	"github.com/rs/zerolog"
)

// Action is one recovery step applied between attempts.
type Action int

const (
	ActionClose Action = iota
	ActionBackoff
	ActionReconnect
	ActionOpen
)

func (a Action) String() string {
	switch a {
	case ActionClose:
		return "close"
	case ActionBackoff:
		return "backoff"
	case ActionReconnect:
		return "reconnect"
	case ActionOpen:
		return "open"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Step records one applied recovery action. Remaining is the attempts
// counter after the failure that triggered it.
type Step struct {
	Remaining int
	Action    Action
	Delay     time.Duration
	Err       error
}

// Observer is told about every recovery step, in order.
type Observer interface {
	Recovery(Step)
}

type ObserverFunc func(Step)

func (f ObserverFunc) Recovery(s Step) { f(s) }

// Plan lists the recovery actions taken once a failure leaves r attempts.
//
//	r <= 8      close the link, then wait (8-r) units
//	r >= 7      reconnect
//	5 <= r <= 6 open (full re-pair)
func Plan(r int, unit time.Duration) []Step {
	var steps []Step
	if r <= 8 {
		steps = append(steps, Step{Remaining: r, Action: ActionClose})
		if d := time.Duration(8-r) * unit; d > 0 {
			steps = append(steps, Step{Remaining: r, Action: ActionBackoff, Delay: d})
		}
	}
	switch {
	case r >= 7:
		steps = append(steps, Step{Remaining: r, Action: ActionReconnect})
	case r >= 5:
		steps = append(steps, Step{Remaining: r, Action: ActionOpen})
	}
	return steps
}

// Ladder retries one command attempt and escalates recovery on failure.
type Ladder struct {
	link     link.Link
	epoch    *atomic.Uint64
	attempts int
	unit     time.Duration
	failFast bool
	observer Observer
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func newLadder(l link.Link, epoch *atomic.Uint64, cfg Config, logger zerolog.Logger) *Ladder {
	return &Ladder{
		link:     l,
		epoch:    epoch,
		attempts: cfg.Attempts,
		unit:     cfg.BackoffUnit,
		failFast: cfg.FailFastStatus,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Run calls attempt until it succeeds or the attempts run out. The last
// attempt's error is returned as is.
func (l *Ladder) Run(ctx context.Context, op string, attempt func(context.Context) ([]byte, error)) ([]byte, error) {
	for r := l.attempts; ; {
		body, err := attempt(ctx)
		if err == nil || r == 0 {
			return body, err
		}
		if l.failFast && protocol.IsPermanent(err) {
			return nil, err
		}

		epoch := l.advance()
		r--
		kind := protocol.Kind(err)
		observability.RecordAttemptFailure(op, kind)
		l.logger.Warn().
			Str("op", op).
			Str("kind", kind).
			Int("remaining", r).
			Uint64("epoch", epoch).
			Err(err).
			Msg("session: attempt failed")

		if err := l.recover(ctx, r); err != nil {
			return nil, err
		}
	}
}

// advance moves to the next connection generation.
func (l *Ladder) advance() uint64 {
	epoch := l.epoch.Add(1)
	observability.RecordEpoch(epoch)
	return epoch
}

// recover applies Plan(r). Link failures are logged and swallowed; only a
// done ctx during backoff stops the ladder.
func (l *Ladder) recover(ctx context.Context, r int) error {
	for _, step := range Plan(r, l.unit) {
		switch step.Action {
		case ActionClose:
			step.Err = l.link.Close()
		case ActionBackoff:
			if err := l.sleep(ctx, step.Delay); err != nil {
				return err
			}
		case ActionReconnect:
			step.Err = l.link.Reconnect(ctx)
		case ActionOpen:
			step.Err = l.link.Open(ctx)
		}

		observability.RecordRecovery(step.Action.String(), step.Err == nil)
		if step.Err != nil {
			l.logger.Warn().Str("action", step.Action.String()).Int("remaining", r).Err(step.Err).Msg("session: recovery failed")
		} else {
			l.logger.Debug().Str("action", step.Action.String()).Int("remaining", r).Dur("delay", step.Delay).Msg("session: recovery")
		}
		if l.observer != nil {
			l.observer.Recovery(step)
		}
	}
	return nil
}

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
