// Package event provides an in-process publish/subscribe bus for request
// lifecycle events: retries, fallbacks, stream deltas, tool execution.
// The CLI verbose mode and the HTTP SSE endpoint subscribe to it; the core
// publishes and never blocks on slow consumers.
package event

import (
	"sync"
)

// Type identifies an event kind.
type Type string

const (
	RequestStarted   Type = "request.started"
	RequestFinished  Type = "request.finished"
	RetryScheduled   Type = "retry.scheduled"
	FallbackAdvanced Type = "fallback.advanced"
	StreamDelta      Type = "stream.delta"
	ToolStarted      Type = "tool.started"
	ToolFinished     Type = "tool.finished"
)

// Event is one published occurrence.
type Event struct {
	Type Type
	Data any
}

// RequestData describes request start/finish events.
type RequestData struct {
	RequestID string
	Model     string
	Backend   string
	Err       error
}

// RetryData describes a scheduled retry on the same candidate.
type RetryData struct {
	RequestID string
	Backend   string
	Attempt   int
	DelayMS   int64
}

// FallbackData describes advancement to the next routing candidate.
type FallbackData struct {
	RequestID string
	From      string
	To        string
}

// DeltaData carries one streamed content increment.
type DeltaData struct {
	RequestID string
	Content   string
}

// ToolData describes tool execution start/finish.
type ToolData struct {
	RequestID string
	CallID    string
	Tool      string
	Err       string
}

// Bus fans events out to subscribers. Subscriber channels are buffered;
// events to a full channel are dropped rather than stalling the core.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer. The returned cancel function must be
// called to release the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all current subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

var defaultBus = NewBus()

// Default returns the process-wide bus.
func Default() *Bus { return defaultBus }

// Publish publishes on the process-wide bus.
func Publish(e Event) { defaultBus.Publish(e) }

// Subscribe subscribes to the process-wide bus.
func Subscribe() (<-chan Event, func()) { return defaultBus.Subscribe() }
