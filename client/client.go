// Package client is the embedding surface for applications that submit
// documents and work the review queue. It wraps the engine with asynchronous
// submission, polling helpers, and typed result access.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/docflowlabs/docflow/backend"
	"github.com/docflowlabs/docflow/core"
	"github.com/docflowlabs/docflow/engine"
	"github.com/docflowlabs/docflow/log"
	"github.com/docflowlabs/docflow/stream"
	"github.com/google/uuid"
)

type SubmitOptions struct {
	// RunID fixes the run's ID; empty generates one. Fixing the ID lets the
	// caller subscribe to the run's event stream before submitting, so no
	// event is missed.
	RunID string
}

type Client struct {
	engine *engine.Engine
	clock  clock.Clock
	logger *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithClock(cl clock.Clock) Option {
	return func(c *Client) {
		c.clock = cl
	}
}

func New(e *engine.Engine, opts ...Option) *Client {
	c := &Client{
		engine: e,
		clock:  clock.New(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit starts a document run in the background and returns its run ID
// immediately. The run keeps going after the submitting request's context
// ends; follow it via Subscribe, WaitForRun, or Status.
func (c *Client) Submit(ctx context.Context, options SubmitOptions, documentContent string) (string, error) {
	runID := options.RunID
	if runID == "" {
		runID = uuid.NewString()
	} else if _, err := c.engine.GetRun(ctx, runID); err == nil {
		return "", fmt.Errorf("submitting run %s: %w", runID, backend.ErrRunAlreadyExists)
	}

	// The run outlives the submitting request.
	runCtx := context.WithoutCancel(ctx)

	go func() {
		state, suspended, err := c.engine.Run(runCtx, documentContent, engine.WithRunID(runID))
		switch {
		case err != nil:
			c.logger.Error("Submitted run stopped", log.RunIDKey, runID, "error", err)
		case suspended:
			c.logger.Debug("Submitted run suspended for review", log.RunIDKey, runID, log.ReviewReasonKey, state.ReasonForReview)
		default:
			c.logger.Debug("Submitted run finished", log.RunIDKey, runID, log.StatusKey, state.Status)
		}
	}()

	c.logger.Debug("Submitted document", log.RunIDKey, runID)

	return runID, nil
}

// SubmitAndWait starts a document run and blocks until it finalizes, fails,
// or suspends for human review. The returned bool is true when suspended.
func (c *Client) SubmitAndWait(ctx context.Context, options SubmitOptions, documentContent string) (*core.WorkflowState, bool, error) {
	runID := options.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return c.engine.Run(ctx, documentContent, engine.WithRunID(runID))
}

// Status returns the latest persisted state of a run.
func (c *Client) Status(ctx context.Context, runID string) (*core.WorkflowState, error) {
	return c.engine.GetRun(ctx, runID)
}

// History returns all checkpoints of a run, oldest first.
func (c *Client) History(ctx context.Context, runID string) ([]*core.Checkpoint, error) {
	return c.engine.History(ctx, runID)
}

// Resume continues a suspended run, optionally merging the reviewer's
// corrections first. The returned bool is true when the run suspended again.
func (c *Client) Resume(ctx context.Context, runID string, corrections map[string]any) (*core.WorkflowState, bool, error) {
	return c.engine.Resume(ctx, runID, corrections)
}

// Reject ends a suspended run with a rejection error.
func (c *Client) Reject(ctx context.Context, runID string) (*core.WorkflowState, error) {
	return c.engine.Reject(ctx, runID)
}

// PendingReviews returns the review queue, oldest entry first.
func (c *Client) PendingReviews(ctx context.Context) ([]*core.ReviewQueueEntry, error) {
	return c.engine.PendingReviews(ctx)
}

// Subscribe attaches to a run's event stream.
func (c *Client) Subscribe(runID string) *stream.Subscription {
	return c.engine.Subscribe(runID)
}

// GetStats returns counts about the underlying store.
func (c *Client) GetStats(ctx context.Context) (*backend.Stats, error) {
	return c.engine.Stats(ctx)
}

// WaitForRun polls until the run settles: finalized, failed, or suspended
// for human review. A suspended run counts as settled because it makes no
// progress without a reviewer.
func (c *Client) WaitForRun(ctx context.Context, runID string, timeout time.Duration) (*core.WorkflowState, error) {
	if timeout == 0 {
		timeout = time.Second * 20
	}

	b := backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 1,
		MaxInterval:         time.Second * 1,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	ticker := backoff.NewTicker(&b)
	defer ticker.Stop()

	for range ticker.C {
		state, err := c.engine.GetRun(ctx, runID)
		if err != nil {
			if errors.Is(err, backend.ErrRunNotFound) {
				// Submit is asynchronous; the first checkpoint may not have
				// landed yet.
				continue
			}

			return nil, fmt.Errorf("getting run state: %w", err)
		}

		if state.Status.Terminal() || state.Status == core.StatusPendingReview {
			return state, nil
		}
	}

	return nil, fmt.Errorf("run %s did not settle within %s", runID, timeout)
}

// GetResult waits for the run to settle and decodes its extracted data into
// T. A run that suspended or failed instead of finalizing is an error.
func GetResult[T any](ctx context.Context, c *Client, runID string, timeout time.Duration) (T, error) {
	state, err := c.WaitForRun(ctx, runID, timeout)
	if err != nil {
		return *new(T), err
	}

	if state.Status != core.StatusFinalized {
		return *new(T), fmt.Errorf("run %s settled as %s, not %s", runID, state.Status, core.StatusFinalized)
	}

	data, err := json.Marshal(state.ExtractedData)
	if err != nil {
		return *new(T), fmt.Errorf("serializing extracted data: %w", err)
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return *new(T), fmt.Errorf("decoding extracted data: %w", err)
	}

	return result, nil
}
