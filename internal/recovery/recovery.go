// Package recovery implements the error-recovery state machine (C6): a
// closed tagged-variant error classification and a bounded
// classify/retry/fall-back/adapt/give-up loop around one tool invocation
// attempt (spec §4.2).
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/gradrix/dendrite/internal/model"
)

// ErrorClass is the closed set of failure categories C6 classifies into.
// Modeled as a string enum rather than an error type hierarchy, per the
// guidance to avoid reflection-style duck-typing for dynamic dispatch.
type ErrorClass string

const (
	ClassTransient         ErrorClass = "transient"
	ClassWrongTool         ErrorClass = "wrong_tool"
	ClassParameterMismatch ErrorClass = "parameter_mismatch"
	ClassImpossible        ErrorClass = "impossible"
)

// State is the closed set of states the recovery loop occupies.
type State string

const (
	StateClassifying State = "classifying"
	StateRetrying    State = "retrying"
	StateFallingBack State = "falling_back"
	StateAdapting    State = "adapting"
	StateGivingUp    State = "giving_up"
	StateDone        State = "done"
)

// Classifier maps a tool-invocation error to an ErrorClass. Kept as an
// injectable function rather than a fixed rule set, so the orchestrator can
// supply an LLM-backed or heuristic classifier without recovery depending
// on llmclient directly.
type Classifier func(ctx context.Context, tool model.ToolName, err error) ErrorClass

// Attempter runs one tool invocation attempt, returning its error if any.
type Attempter func(ctx context.Context, tool model.ToolName) error

// FallbackPicker returns the next alternative tool to try, or ok=false if
// none remain (spec §4.2's fallback cap and tool-discovery hand-off).
type FallbackPicker func(ctx context.Context, failedTools []model.ToolName) (model.ToolName, bool)

// Outcome is the terminal result of a recovery run.
type Outcome struct {
	Success    bool
	FinalState State
	Attempts   int
	LastClass  ErrorClass
	LastError  error
	ToolsTried []model.ToolName
}

// Policy bounds the recovery loop (spec §4.2).
type Policy struct {
	RetryCap      int
	FallbackCap   int
	BaseBackoff   time.Duration
	BackoffFactor float64
}

// ErrGaveUp is returned by Run when the bounded attempt budget is exhausted.
var ErrGaveUp = errors.New("recovery: gave up")

// Run drives the classify/retry/fall-back/adapt/give-up state machine for
// one tool, per spec §4.2. Total attempts are bounded by
// RetryCap+FallbackCap+1 (spec's "bounded total attempts" invariant).
func Run(ctx context.Context, policy Policy, tool model.ToolName, attempt Attempter, classify Classifier, fallback FallbackPicker) Outcome {
	maxAttempts := policy.RetryCap + policy.FallbackCap + 1
	state := StateClassifying
	current := tool
	tried := []model.ToolName{current}
	retries := 0
	fallbacks := 0
	adapted := false
	var lastClass ErrorClass
	var lastErr error

	for attemptCount := 1; attemptCount <= maxAttempts; attemptCount++ {
		err := attempt(ctx, current)
		if err == nil {
			return Outcome{Success: true, FinalState: StateDone, Attempts: attemptCount, ToolsTried: tried}
		}
		lastErr = err

		state = StateClassifying
		lastClass = classify(ctx, current, err)

		switch lastClass {
		case ClassTransient:
			if retries >= policy.RetryCap {
				state = StateGivingUp
				return Outcome{FinalState: state, Attempts: attemptCount, LastClass: lastClass, LastError: lastErr, ToolsTried: tried}
			}
			state = StateRetrying
			backoff := time.Duration(float64(policy.BaseBackoff) * math.Pow(policy.BackoffFactor, float64(retries)))
			retries++
			if err := sleep(ctx, backoff); err != nil {
				return Outcome{FinalState: StateGivingUp, Attempts: attemptCount, LastClass: lastClass, LastError: err, ToolsTried: tried}
			}

		case ClassWrongTool:
			if fallbacks >= policy.FallbackCap {
				state = StateGivingUp
				return Outcome{FinalState: state, Attempts: attemptCount, LastClass: lastClass, LastError: lastErr, ToolsTried: tried}
			}
			next, ok := fallback(ctx, tried)
			if !ok {
				return Outcome{FinalState: StateGivingUp, Attempts: attemptCount, LastClass: lastClass, LastError: lastErr, ToolsTried: tried}
			}
			state = StateFallingBack
			current = next
			fallbacks++
			tried = append(tried, current)

		case ClassParameterMismatch:
			// Adapting re-runs the same tool with freshly synthesized
			// parameters; the caller's attempt closure owns the synthesis.
			// Spec §4.2: a single adaptation attempt, independent of the
			// retry/fallback budgets — success continues, a second
			// parameter-mismatch failure gives up immediately.
			state = StateAdapting
			if adapted {
				return Outcome{FinalState: StateGivingUp, Attempts: attemptCount, LastClass: lastClass, LastError: lastErr, ToolsTried: tried}
			}
			adapted = true

		case ClassImpossible:
			return Outcome{FinalState: StateGivingUp, Attempts: attemptCount, LastClass: lastClass, LastError: lastErr, ToolsTried: tried}

		default:
			return Outcome{FinalState: StateGivingUp, Attempts: attemptCount, LastClass: lastClass, LastError: fmt.Errorf("recovery: unknown error class %q: %w", lastClass, lastErr), ToolsTried: tried}
		}
	}
	return Outcome{FinalState: StateGivingUp, Attempts: maxAttempts, LastClass: lastClass, LastError: ErrGaveUp, ToolsTried: tried}
}

// sleep waits out d, honoring ctx cancellation, via a throwaway
// golang.org/x/time/rate limiter rather than a bare timer: the same
// primitive that paces the hosted LLM backends (see llmclient.RateLimited)
// paces the exponential retry delay here, so a canceled goal execution
// unblocks a stuck retry exactly as it unblocks a stuck LLM call.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	limiter := rate.NewLimiter(rate.Every(d), 1)
	limiter.Allow() // drain the initial burst token so Wait actually blocks ~d
	return limiter.Wait(ctx)
}
