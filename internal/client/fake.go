package client

import (
	"context"

	"github.com/rfenwick/aide/internal/message"
	"github.com/rfenwick/aide/internal/provider"
)

// FakeClient is a test double that plays back scripted event streams.
// Each call to Stream pops the next script; when exhausted it emits a plain
// end_turn text response.
//
// Usage:
//
//	fake := &client.FakeClient{
//	    Scripts: [][]message.StreamEvent{
//	        {message.TextEvent("hello"), message.StopEvent("end_turn")},
//	    },
//	}
type FakeClient struct {
	// Scripts is the queue of event sequences to play back, consumed in order.
	Scripts [][]message.StreamEvent

	// Model name (defaults to "fake-model").
	Model string

	// ProviderName (defaults to "fake").
	ProviderName string

	// Calls records every set of CompletionOptions received, in order.
	Calls []provider.CompletionOptions

	// ErrorAt injects an error event on the Nth call (1-based). 0 disables.
	ErrorAt int

	// ErrorValue is the error to inject when ErrorAt triggers.
	ErrorValue error

	callCount int
}

// Stream plays back the next script as an event channel.
func (f *FakeClient) Stream(_ context.Context, msgs []message.Message,
	tools []provider.Tool, sysPrompt string) <-chan message.StreamEvent {
	f.Calls = append(f.Calls, provider.CompletionOptions{
		Model:        f.ModelID(),
		Messages:     msgs,
		Tools:        tools,
		SystemPrompt: sysPrompt,
	})
	f.callCount++

	var events []message.StreamEvent
	if f.ErrorAt > 0 && f.callCount == f.ErrorAt {
		events = []message.StreamEvent{message.ErrorEvent(f.ErrorValue)}
	} else if len(f.Scripts) == 0 {
		events = []message.StreamEvent{
			message.TextEvent("no more responses"),
			message.StopEvent("end_turn"),
		}
	} else {
		events = f.Scripts[0]
		f.Scripts = f.Scripts[1:]
	}

	ch := make(chan message.StreamEvent, len(events))
	go func() {
		defer close(ch)
		for _, ev := range events {
			ch <- ev
		}
	}()
	return ch
}

// Name returns the provider name.
func (f *FakeClient) Name() string {
	if f.ProviderName != "" {
		return f.ProviderName
	}
	return "fake"
}

// ModelID returns the model identifier.
func (f *FakeClient) ModelID() string {
	if f.Model != "" {
		return f.Model
	}
	return "fake-model"
}

var _ Streamer = (*FakeClient)(nil)
