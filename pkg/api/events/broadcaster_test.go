package events

import (
	"testing"
	"time"
)

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.Broadcast(Event{
		Type: "memory.saved",
		Payload: map[string]any{
			"id": "01HZXK3V9W",
		},
	})

	select {
	case event := <-ch:
		if event.Type != "memory.saved" {
			t.Fatalf("type = %q, want memory.saved", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
	}

	b.Unsubscribe(ch)
}

func TestBroadcaster_DomainHelpers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(4)

	b.BroadcastMemorySaved("01HZXK3V9W", "private", "alice", false, time.Now().UTC())
	b.BroadcastPatternTransition("01HZXK3VA0", "tracked", "candidate", 0, 3)
	b.BroadcastPatternTransition("01HZXK3VA0", "auto_applying", "demoted", 0.6, 12)

	wantTypes := []string{"memory.saved", "pattern.promoted", "pattern.demoted"}
	for i, want := range wantTypes {
		select {
		case event := <-ch:
			if event.Type != want {
				t.Fatalf("event %d type = %q, want %q", i, event.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s event", want)
		}
	}
}

func TestBroadcaster_DropsOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Broadcast(Event{Type: "memory.saved"})
	b.Broadcast(Event{Type: "memory.saved"})

	<-ch
	select {
	case <-ch:
		t.Fatal("expected second event to be dropped on full buffer")
	default:
	}
}
