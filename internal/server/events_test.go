package server

import (
	"testing"
	"time"

	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
)

func TestEventHubFanOut(t *testing.T) {
	hub := NewEventHub(4)

	var counts []int
	hub.OnClientsChanged(func(n int) { counts = append(counts, n) })

	a, unsubA := hub.Subscribe()
	b, unsubB := hub.Subscribe()
	if hub.Len() != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", hub.Len())
	}

	hub.LogEvent(telemetry.NewEvent(telemetry.EventCaptureStarted, time.Unix(1000, 0)))
	hub.WriteTelemetry(telemetry.ChanFramesProcessed, 3)

	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		msg := <-ch
		if msg.Type != MessageEvent {
			t.Errorf("%s: expected event first, got %s", name, msg.Type)
		}
		if ev, ok := msg.Data.(telemetry.Event); !ok || ev.ID != telemetry.EventCaptureStarted {
			t.Errorf("%s: unexpected event payload %+v", name, msg.Data)
		}

		msg = <-ch
		if msg.Type != MessageTelemetry {
			t.Errorf("%s: expected telemetry second, got %s", name, msg.Type)
		}
		if s, ok := msg.Data.(telemetry.Sample); !ok || s.Channel != telemetry.ChanFramesProcessed || s.Value != 3 {
			t.Errorf("%s: unexpected telemetry payload %+v", name, msg.Data)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Error("Expected channel closed after unsubscribe")
	}
	unsubB()

	if hub.Len() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", hub.Len())
	}

	want := []int{1, 2, 1, 0}
	if len(counts) != len(want) {
		t.Fatalf("Expected client counts %v, got %v", want, counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("Expected client counts %v, got %v", want, counts)
			break
		}
	}
}

func TestEventHubSkipsSlowConsumer(t *testing.T) {
	hub := NewEventHub(2)
	ch, unsub := hub.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.WriteTelemetry(telemetry.ChanAudioInputLevel, float64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publishing blocked on a full subscriber")
	}

	if len(ch) != 2 {
		t.Errorf("Expected 2 buffered messages, got %d", len(ch))
	}
	msg := <-ch
	if s := msg.Data.(telemetry.Sample); s.Value != 0 {
		t.Errorf("Expected oldest message kept, got %v", s.Value)
	}
}

func TestEventHubDefaultBuffer(t *testing.T) {
	hub := NewEventHub(0)
	ch, unsub := hub.Subscribe()
	defer unsub()

	if cap(ch) != 64 {
		t.Errorf("Expected default buffer 64, got %d", cap(ch))
	}
}
