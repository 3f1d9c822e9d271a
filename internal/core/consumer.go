package core

import (
	"context"
	"time"

	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/log"
	"github.com/rfenwick/aide/internal/message"
)

// Turn is the outcome of consuming one model stream.
type Turn struct {
	Blocks          []message.Block
	ToolCalls       []message.ToolCall
	Usage           message.Usage
	StopReason      string
	Duration        time.Duration
	TokensPerSecond float64

	// Err is set when the stream ended with an error event.
	Err error

	// Cancelled is set when the context was aborted mid-stream.
	Cancelled bool
}

// RenderFlush receives a cosmetic block snapshot. Lost ticks are harmless.
type RenderFlush func(blocks []message.Block)

// PersistFlush writes blocks to durable storage. Failures are logged and
// retried on the next tick; the engine forces its own synchronous write before
// any model-context rebuild, so the periodic flush is never load-bearing.
type PersistFlush func(blocks []message.Block) error

// Consumer assembles low-level stream events into ordered message blocks,
// flushing on two independent cadences.
type Consumer struct {
	renderEvery  time.Duration
	persistEvery time.Duration
	onRender     RenderFlush
	onPersist    PersistFlush
}

// NewConsumer creates a consumer with the configured flush intervals.
func NewConsumer(pipeline config.PipelineSettings, onRender RenderFlush, onPersist PersistFlush) *Consumer {
	return &Consumer{
		renderEvery:  pipeline.RenderFlush(),
		persistEvery: pipeline.PersistFlush(),
		onRender:     onRender,
		onPersist:    onPersist,
	}
}

// Consume reads the stream to completion and returns the assembled turn.
// Cancellation is checked at every event boundary.
func (c *Consumer) Consume(ctx context.Context, events <-chan message.StreamEvent) Turn {
	renderTick := time.NewTicker(c.renderEvery)
	defer renderTick.Stop()
	persistTick := time.NewTicker(c.persistEvery)
	defer persistTick.Stop()

	var turn Turn
	turn.StopReason = "end_turn"
	start := time.Now()

	// Indexes of the open block per type; -1 means none pending. A tool call
	// start closes both so later text opens a fresh block after it.
	contentIdx, reasoningIdx := -1, -1
	toolIdx := make(map[string]int)

	dirty := false
	flushRender := func() {
		if c.onRender != nil {
			c.onRender(snapshotBlocks(turn.Blocks))
		}
	}
	flushPersist := func() {
		if c.onPersist == nil {
			return
		}
		if err := c.onPersist(snapshotBlocks(turn.Blocks)); err != nil {
			log.LogError("persist", err)
		}
	}
	finish := func() Turn {
		turn.Duration = time.Since(start)
		if secs := turn.Duration.Seconds(); secs > 0 && turn.Usage.OutputTokens > 0 {
			turn.TokensPerSecond = float64(turn.Usage.OutputTokens) / secs
		}
		turn.ToolCalls = collectToolCalls(turn.Blocks)
		flushPersist()
		flushRender()
		return turn
	}

	for {
		select {
		case <-ctx.Done():
			message.FinalizePending(turn.Blocks, message.StatusError)
			turn.Cancelled = true
			return finish()

		case <-renderTick.C:
			if dirty {
				flushRender()
			}

		case <-persistTick.C:
			if dirty {
				flushPersist()
				dirty = false
			}

		case ev, ok := <-events:
			if !ok {
				message.FinalizePending(turn.Blocks, message.StatusSuccess)
				return finish()
			}
			dirty = true

			switch ev.Type {
			case message.EventText:
				if contentIdx < 0 {
					turn.Blocks = append(turn.Blocks, message.NewBlock(message.BlockContent))
					contentIdx = len(turn.Blocks) - 1
				}
				turn.Blocks[contentIdx].Text += ev.Text

			case message.EventReasoning:
				if reasoningIdx < 0 {
					turn.Blocks = append(turn.Blocks, message.NewBlock(message.BlockReasoning))
					reasoningIdx = len(turn.Blocks) - 1
				}
				turn.Blocks[reasoningIdx].Text += ev.Text

			case message.EventToolCallStart:
				contentIdx, reasoningIdx = -1, -1
				turn.Blocks = append(turn.Blocks, message.NewToolCallBlock(message.ToolCall{
					ID:   ev.ToolID,
					Name: ev.ToolName,
				}))
				toolIdx[ev.ToolID] = len(turn.Blocks) - 1

			case message.EventToolCallDelta:
				if idx, ok := toolIdx[ev.ToolID]; ok {
					turn.Blocks[idx].ToolCall.Arguments += ev.Text
				}

			case message.EventToolCallEnd:
				// Arguments are complete; the block stays pending until the
				// processor resolves it.

			case message.EventUsage:
				if ev.Usage != nil {
					turn.Usage.Add(*ev.Usage)
				}

			case message.EventStop:
				if ev.StopReason != "" {
					turn.StopReason = ev.StopReason
				}
				message.FinalizePending(turn.Blocks, message.StatusSuccess)
				return finish()

			case message.EventError:
				errBlock := message.NewBlock(message.BlockError)
				errBlock.Status = message.StatusError
				if ev.Err != nil {
					errBlock.Text = ev.Err.Error()
				}
				message.FinalizePending(turn.Blocks, message.StatusError)
				turn.Blocks = append(turn.Blocks, errBlock)
				turn.Err = ev.Err
				return finish()
			}
		}
	}
}

func snapshotBlocks(blocks []message.Block) []message.Block {
	out := make([]message.Block, len(blocks))
	copy(out, blocks)
	for i := range out {
		if out[i].ToolCall != nil {
			tc := *out[i].ToolCall
			out[i].ToolCall = &tc
		}
		if out[i].Permission != nil {
			p := *out[i].Permission
			out[i].Permission = &p
		}
	}
	return out
}

func collectToolCalls(blocks []message.Block) []message.ToolCall {
	var calls []message.ToolCall
	for i := range blocks {
		if blocks[i].Type == message.BlockToolCall && blocks[i].ToolCall != nil {
			calls = append(calls, blocks[i].Call())
		}
	}
	return calls
}
