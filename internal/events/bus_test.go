package events

import (
	"testing"
	"time"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()

	p := &model.ParticipantProfile{PrivateID: "p_1", CurrentStageID: "s_1"}
	bus.Publish(ParticipantEvent{After: p})

	for name, ch := range map[string]<-chan ParticipantEvent{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.After.PrivateID != "p_1" {
				t.Errorf("subscriber %s got event for %q", name, ev.After.PrivateID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s received nothing", name)
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()

	bus.Publish(ParticipantEvent{After: &model.ParticipantProfile{PrivateID: "p_1"}})
	// The buffer is full; this one is dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		bus.Publish(ParticipantEvent{After: &model.ParticipantProfile{PrivateID: "p_2"}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	ev := <-ch
	if ev.After.PrivateID != "p_1" {
		t.Errorf("buffered event = %q, want %q", ev.After.PrivateID, "p_1")
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected second event for %q", extra.After.PrivateID)
	default:
	}
}

func TestBusCloseEndsSubscribers(t *testing.T) {
	bus := NewBus(1)
	ch := bus.Subscribe()

	bus.Close()
	if _, ok := <-ch; ok {
		t.Error("subscriber channel still open after Close")
	}

	// Publishing after close is a no-op, not a panic.
	bus.Publish(ParticipantEvent{After: &model.ParticipantProfile{PrivateID: "p_late"}})
	bus.Close()
}

func TestStageChanged(t *testing.T) {
	at := func(stageID string) *model.ParticipantProfile {
		return &model.ParticipantProfile{PrivateID: "p_1", CurrentStageID: stageID}
	}

	cases := []struct {
		name string
		ev   ParticipantEvent
		want bool
	}{
		{"creation", ParticipantEvent{After: at("s_1")}, true},
		{"advance", ParticipantEvent{Before: at("s_1"), After: at("s_2")}, true},
		{"status only", ParticipantEvent{Before: at("s_1"), After: at("s_1")}, false},
		{"nil after", ParticipantEvent{Before: at("s_1")}, false},
	}
	for _, tc := range cases {
		if got := tc.ev.StageChanged(); got != tc.want {
			t.Errorf("%s: StageChanged() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
