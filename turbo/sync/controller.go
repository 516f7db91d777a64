// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package sync implements the event-driven sync controller of spec.md
// section 4.4: a single cooperative task that owns a Pipeline and drives it
// between Idle and Running in response to ForkchoiceUpdated and NewPayload
// messages. Ported from reth's sync-controller crate (a poll_unpin state
// machine over two enum variants) onto a goroutine-plus-channel rendering,
// since Go has no borrowed futures: the in-flight pipeline run is a
// goroutine reporting onto a done channel instead of a polled Future.
package sync

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/erigon-postchain/common"
)

// ForkchoiceState carries the head/safe/finalized targets most recently
// delivered by ForkchoiceUpdated (spec.md section 4.4).
type ForkchoiceState struct {
	HeadBlockHash      common.Hash
	SafeBlockHash      common.Hash
	FinalizedBlockHash common.Hash
}

// SealedBlock is the payload carried by a NewPayload message.
type SealedBlock struct {
	Hash   common.Hash
	Number common.BlockNumber
}

// Message is the sealed union of messages the controller accepts. It has
// exactly two variants, matching spec.md section 4.4's closed set, dispatched
// by a type switch rather than virtual calls (spec.md section 9's note on
// rendering sum types in a systems language applies here too).
type Message interface {
	isSyncControllerMessage()
}

// ForkchoiceUpdated records new head/safe/finalized targets.
type ForkchoiceUpdated struct{ State ForkchoiceState }

func (ForkchoiceUpdated) isSyncControllerMessage() {}

// NewPayload hands a freshly received block to the blockchain tree once the
// pipeline has nearly caught up.
type NewPayload struct{ Block SealedBlock }

func (NewPayload) isSyncControllerMessage() {}

// PipelineResult is what a completed pipeline Run reports back.
type PipelineResult struct {
	ReachedHead common.BlockNumber
}

// Pipeline is the external collaborator the controller drives (spec.md
// section 1, 4.4). Its internal stages and sync_needed's exact formula are
// out of scope for this fragment.
type Pipeline interface {
	// Run executes one sync iteration toward target and blocks until it
	// completes, ctx is cancelled, or an error occurs. Run must be
	// cancel-safe: a cancelled ctx must make it return promptly with
	// ctx.Err() (spec.md section 5), since dropping the Controller cancels
	// whatever Run call is in flight.
	Run(ctx context.Context, target ForkchoiceState) (PipelineResult, error)

	// SyncNeeded reports whether the pipeline's last-known head is far
	// enough from target to warrant another Run.
	SyncNeeded(target ForkchoiceState, lastResult PipelineResult) bool
}

// BlockchainTree is the external collaborator NewPayload blocks are handed to
// once the pipeline has nearly caught up (spec.md section 4.4).
type BlockchainTree interface {
	InsertBlock(ctx context.Context, block SealedBlock) error
}

// runState exists only while the pipeline is in flight; its presence is what
// distinguishes Running from Idle.
type runState struct {
	done   chan runOutcome
	cancel context.CancelFunc
}

type runOutcome struct {
	result PipelineResult
	err    error
}

// Controller is the single-owner coordinator of spec.md section 4.4: one
// goroutine reads Run, draining messages and advancing the pipeline state
// machine once per wake. It must not be driven from more than one goroutine
// concurrently — that single-owner rule is what lets the pipeline have no
// internal locking of its own.
type Controller struct {
	messages <-chan Message
	pipeline Pipeline
	tree     BlockchainTree
	log      *zap.Logger
	backoff  func() backoff.BackOff

	forkchoice *ForkchoiceState
	lastResult PipelineResult
	running    *runState
}

// NewController builds a Controller driving pipeline, fed by messages, with
// tree as the NewPayload target. log defaults to a no-op logger.
func NewController(pipeline Pipeline, messages <-chan Message, tree BlockchainTree, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		messages: messages,
		pipeline: pipeline,
		tree:     tree,
		log:      log,
		backoff:  newPipelineRetryPolicy,
	}
}

// newPipelineRetryPolicy returns a fresh exponential backoff policy for
// retrying a transient pipeline error; MaxElapsedTime is left at zero (no
// deadline of its own) because the caller's ctx is what ultimately bounds a
// retry loop, not the backoff policy (spec.md section 5, "inherits the
// caller's transaction lifetime").
func newPipelineRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}

// Run drains messages and drives the pipeline until ctx is cancelled or the
// message channel is closed. A failed pipeline run is logged and does not
// end Run. Dropping ctx (or closing the message channel) cancels any
// in-flight pipeline run and releases its database handles (spec.md section
// 4.4, 5).
func (c *Controller) Run(ctx context.Context) error {
	defer c.cancelRunning()

	for {
		if err := c.waitForWork(ctx); err != nil {
			return err
		}
		c.drainPending()
		c.advance(ctx)
	}
}

func (c *Controller) cancelRunning() {
	if c.running != nil {
		c.running.cancel()
	}
}

// waitForWork is the controller's only blocking point: it parks until a
// message arrives, the in-flight pipeline run (if any) completes, or ctx is
// cancelled (spec.md section 5, "suspension points").
func (c *Controller) waitForWork(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-c.messages:
		if !ok {
			return errors.New("sync controller: message channel closed")
		}
		c.handle(msg)
		return nil
	case out := <-c.doneChan():
		c.onPipelineDone(out)
		return nil
	}
}

// drainPending consumes every message ready right now without blocking
// (spec.md section 4.4, "drains all pending messages non-blockingly").
func (c *Controller) drainPending() {
	for {
		select {
		case msg, ok := <-c.messages:
			if !ok {
				return
			}
			c.handle(msg)
		default:
			return
		}
	}
}

// doneChan returns the in-flight run's completion channel, or nil when the
// pipeline is Idle. A nil channel blocks forever in a select, which is
// exactly what "park while Idle-no-sync" requires.
func (c *Controller) doneChan() <-chan runOutcome {
	if c.running == nil {
		return nil
	}
	return c.running.done
}

func (c *Controller) handle(msg Message) {
	switch m := msg.(type) {
	case ForkchoiceUpdated:
		c.log.Info("forkchoice updated", zap.Stringer("head", m.State.HeadBlockHash))
		state := m.State
		c.forkchoice = &state

	case NewPayload:
		if c.running == nil && c.forkchoice != nil {
			if err := c.tree.InsertBlock(context.Background(), m.Block); err != nil {
				c.log.Warn("inserting new payload into blockchain tree", zap.Stringer("hash", m.Block.Hash), zap.Error(err))
			}
		}
		// While Running, newly announced payloads are left for the next
		// Idle-to-Running transition to pick up via the pipeline itself —
		// the blockchain tree is only the fast path for a pipeline that has
		// nearly caught up.
	}
}

// advance is the state machine of spec.md section 4.4: Idle transitions to
// Running when sync_needed is true; Running stays Running until its
// completion arrives through doneChan (handled by onPipelineDone, which also
// calls advance by virtue of the outer Run loop's next iteration).
func (c *Controller) advance(ctx context.Context) {
	if c.running != nil {
		return
	}
	if c.forkchoice == nil {
		// Current-epoch policy: park until the first fork-choice update
		// arrives (spec.md section 4.4).
		return
	}
	if !c.pipeline.SyncNeeded(*c.forkchoice, c.lastResult) {
		return
	}
	c.startRun(ctx)
}

// startRun launches one pipeline attempt under an errgroup, pairing the
// retrying pipeline call with a cancel-safe supervisor goroutine so that a
// context cancellation (controller shutdown) and a pipeline failure both
// unwind through the same g.Wait() path (spec.md section 5's cancel-safety
// requirement for the pipeline future).
func (c *Controller) startRun(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan runOutcome, 1)
	target := *c.forkchoice

	c.log.Info("pipeline run starting", zap.Stringer("target", target.HeadBlockHash))

	g, gctx := errgroup.WithContext(runCtx)
	var result PipelineResult
	g.Go(func() error {
		var err error
		result, err = c.runWithRetry(gctx, target)
		return err
	})

	go func() {
		err := g.Wait()
		done <- runOutcome{result: result, err: err}
	}()

	c.running = &runState{done: done, cancel: cancel}
}

// runWithRetry retries a transient pipeline error (spec.md section 7's IO
// kind) with exponential backoff until a run succeeds or ctx is cancelled;
// the default policy sets no retry-count or elapsed-time limit. Any other
// error is surfaced immediately.
func (c *Controller) runWithRetry(ctx context.Context, target ForkchoiceState) (PipelineResult, error) {
	var result PipelineResult
	op := func() error {
		var err error
		result, err = c.pipeline.Run(ctx, target)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrIO) {
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
	return result, err
}

// onPipelineDone folds a completed run back into the state machine. Per
// spec.md section 4.4, the controller logs the outcome but does not unwind
// on pipeline error — advance (called next by the Run loop) decides whether
// to re-enter Running or park, keyed only by sync_needed.
func (c *Controller) onPipelineDone(out runOutcome) {
	c.running.cancel()
	c.running = nil

	if out.err != nil {
		c.log.Warn("pipeline run failed", zap.Error(out.err))
		return
	}
	c.log.Info("pipeline run completed", zap.Uint64("reachedHead", uint64(out.result.ReachedHead)))
	c.lastResult = out.result
}
