// Package progress fans run lifecycle events out to live subscribers.
// Events are ephemeral: delivery is synchronous at publish time and nothing
// is persisted, so a subscriber only sees events published while attached.
package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cellforge-labs/cellforge-go/internal/domain"
)

// Phase markers published over a run's lifetime, in order of appearance.
const (
	PhaseStart  = "START"
	PhaseSaving = "SAVING"
	PhaseAdvice = "ADVICE"
	PhaseDone   = "DONE"
	PhaseError  = "ERROR"
)

// Event is one progress update for a run. Progress runs 0..100; Metrics is
// attached on terminal phases only.
type Event struct {
	Phase    string          `json:"phase"`
	Message  string          `json:"message"`
	Progress float64         `json:"progress"`
	Metrics  domain.Metadata `json:"metrics,omitempty"`
	TS       time.Time       `json:"ts"`
}

// TaskTopic is the subscription key for one run's event stream.
func TaskTopic(runID string) string {
	return fmt.Sprintf("task:%s", runID)
}

type subscriber struct {
	id int
	ch chan Event
}

// Notifier is an in-process topic broker. Publish delivers to every
// subscriber of the topic in subscription order; a subscriber whose buffer
// is full loses the event rather than blocking the publisher.
type Notifier struct {
	mu      sync.Mutex
	nextID  int
	topics  map[string][]subscriber
	bufSize int
	logger  *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		topics:  make(map[string][]subscriber),
		bufSize: 16,
		logger:  logger,
	}
}

// Subscribe attaches to a topic and returns the event channel plus a cancel
// function. Cancel closes the channel; it is safe to call more than once.
func (n *Notifier) Subscribe(topic string) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := subscriber{id: n.nextID, ch: make(chan Event, n.bufSize)}
	n.topics[topic] = append(n.topics[topic], sub)

	canceled := false
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if canceled {
			return
		}
		canceled = true
		subs := n.topics[topic]
		for i, existing := range subs {
			if existing.id == sub.id {
				n.topics[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(n.topics[topic]) == 0 {
			delete(n.topics, topic)
		}
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Publish delivers the event to current subscribers of the topic.
func (n *Notifier) Publish(topic string, event Event) {
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}

	// Sends stay under the lock so a concurrent cancel cannot close a
	// channel mid-delivery. Sends never block: full buffers drop.
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			n.logger.Warn("progress subscriber lagging, event dropped", "topic", topic, "phase", event.Phase)
		}
	}
}
