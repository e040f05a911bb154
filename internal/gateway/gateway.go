// Package gateway turns inbound conversation turns into runs: it resolves
// sessions, serializes runs within a session, and bounds global concurrency.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/parley/internal/types"
)

// Gateway orchestrates inbound turns into runs. It resolves (or creates)
// sessions, wraps each turn in a Run, and enqueues the run for processing.
type Gateway struct {
	sessions types.SessionStore
	Queue    *Queue
	retry    *RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway wired to the session store with the given concurrency
// limit for simultaneous run processing.
func New(sessions types.SessionStore, maxConcurrent int64) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Gateway{
		sessions: sessions,
		Queue:    NewQueue(maxConcurrent),
		retry:    DefaultRetryPolicy(),
	}
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
	g.wg.Wait()
}

// Retry returns the gateway's retry policy for model calls.
func (g *Gateway) Retry() *RetryPolicy {
	return g.retry
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run produces a final
// response (or the fallback message on failure).
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// HandleInbound resolves or creates a session for the turn, wraps it in a
// Run, and enqueues it for processing. The returned Run can be waited on.
func (g *Gateway) HandleInbound(ctx context.Context, turn *types.InboundTurn, opts ...RunOption) (*Run, error) {
	sessionID, err := g.sessions.ResolveOrCreate(ctx, turn.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	run := NewRun(sessionID, turn)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, err
	}
	return run, nil
}
