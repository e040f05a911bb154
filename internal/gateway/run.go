package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/user/parley/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// FallbackMessage is delivered in place of a response when a run fails and
// the caller asked for best-effort delivery.
const FallbackMessage = "Sorry, something went wrong processing your message. Please try again."

// Run tracks a single execution of an inbound turn against a session. Callers
// that need the outcome synchronously block on Wait; callers that fire and
// forget set OnComplete.
type Run struct {
	ID        types.RunID
	SessionID types.SessionID
	Turn      *types.InboundTurn
	Status    RunStatus
	Attempts  int
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time

	// Ctx is set by the queue when processing begins.
	Ctx context.Context

	// Result and Err are valid once the run has finished.
	Result string
	Err    error

	OnComplete func(response string)

	done     chan struct{}
	doneOnce sync.Once
}

// NewRun creates a Run in the Queued state for the given session and turn.
func NewRun(sessionID types.SessionID, turn *types.InboundTurn) *Run {
	return &Run{
		ID:        types.NewRunID(),
		SessionID: sessionID,
		Turn:      turn,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Complete marks the run successful with the final response, fires
// OnComplete, and releases any waiters.
func (r *Run) Complete(response string) {
	r.doneOnce.Do(func() {
		now := time.Now()
		r.Status = RunStatusComplete
		r.Result = response
		r.EndedAt = &now
		if r.OnComplete != nil {
			r.OnComplete(response)
		}
		if r.done != nil {
			close(r.done)
		}
	})
}

// Fail marks the run failed, delivers the fallback message to OnComplete,
// and releases any waiters. Waiters see the original error via Err.
func (r *Run) Fail(err error) {
	r.doneOnce.Do(func() {
		now := time.Now()
		r.Status = RunStatusFailed
		r.Err = err
		r.EndedAt = &now
		if r.OnComplete != nil {
			r.OnComplete(FallbackMessage)
		}
		if r.done != nil {
			close(r.done)
		}
	})
}

// Wait blocks until the run finishes or ctx expires. On completion it
// returns the final response; on failure it returns the run's error.
func (r *Run) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.Result, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
