package events

import (
	"context"
	"sync"
)

// Recorded is one captured publication.
type Recorded struct {
	Topic string
	Event any
}

// Recorder is a Publisher that captures publications in memory. Tests use it
// to assert that a transition note fired exactly once.
type Recorder struct {
	mu        sync.Mutex
	published []Recorded
}

func (r *Recorder) Publish(ctx context.Context, topic string, event any) error {
	r.mu.Lock()
	r.published = append(r.published, Recorded{Topic: topic, Event: event})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error {
	return nil
}

// Published returns the captured publications in order.
func (r *Recorder) Published() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.published))
	copy(out, r.published)
	return out
}
