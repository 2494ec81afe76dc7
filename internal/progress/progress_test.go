package progress

import (
	"log/slog"
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	n := NewNotifier(slog.Default())
	topic := TaskTopic("run-1")

	ch, cancel := n.Subscribe(topic)
	defer cancel()

	n.Publish(topic, Event{Phase: PhaseStart, Progress: 0})
	n.Publish(topic, Event{Phase: PhaseSaving, Progress: 80})
	n.Publish(topic, Event{Phase: PhaseDone, Progress: 100})

	for _, want := range []string{PhaseStart, PhaseSaving, PhaseDone} {
		select {
		case ev := <-ch:
			if ev.Phase != want {
				t.Fatalf("phase=%s, want %s", ev.Phase, want)
			}
			if ev.TS.IsZero() {
				t.Fatalf("timestamp should be stamped at publish")
			}
		default:
			t.Fatalf("missing %s event", want)
		}
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	n := NewNotifier(slog.Default())

	ch, cancel := n.Subscribe(TaskTopic("run-1"))
	defer cancel()

	n.Publish(TaskTopic("run-2"), Event{Phase: PhaseStart})
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	n := NewNotifier(slog.Default())
	topic := TaskTopic("run-1")

	ch, cancel := n.Subscribe(topic)
	cancel()
	cancel() // second cancel is a no-op

	if _, open := <-ch; open {
		t.Fatalf("channel should be closed after cancel")
	}

	// Publishing to a topic with no subscribers must not panic.
	n.Publish(topic, Event{Phase: PhaseDone})
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	n := NewNotifier(slog.Default())
	topic := TaskTopic("run-1")

	ch, cancel := n.Subscribe(topic)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			n.Publish(topic, Event{Phase: PhaseAdvice, TS: time.Now()})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber buffer")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received == 0 || received > 16 {
				t.Fatalf("received %d events, want 1..16", received)
			}
			return
		}
	}
}
