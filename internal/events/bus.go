package events

import (
	"sync"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// ParticipantEvent carries a before/after snapshot of a participant
// document. Before is nil on creation. Subscribers decide what changed by
// comparing the two; the publisher does no interpretation.
type ParticipantEvent struct {
	Before *model.ParticipantProfile
	After  *model.ParticipantProfile
}

// StageChanged reports whether the event moved the participant to a new stage
func (e ParticipantEvent) StageChanged() bool {
	if e.After == nil {
		return false
	}
	return e.Before == nil || e.Before.CurrentStageID != e.After.CurrentStageID
}

// Bus is an in-process publish/subscribe channel for participant document
// changes. Publishing never blocks: a subscriber that falls behind loses
// events, and drivers are written to tolerate that (their actions are
// idempotent re-checks against current state).
type Bus struct {
	mu     sync.RWMutex
	subs   []chan ParticipantEvent
	buffer int
	closed bool
}

// NewBus creates a bus with the given per-subscriber buffer
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer}
}

// Subscribe registers a new subscriber channel
func (b *Bus) Subscribe() <-chan ParticipantEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ParticipantEvent, b.buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to all subscribers without blocking
func (b *Bus) Publish(ev ParticipantEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full; drop.
		}
	}
}

// Close shuts down all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
