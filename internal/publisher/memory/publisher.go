// Package memory contains an in-memory publisher used in tests and when
// Pub/Sub delivery is disabled.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message captures one publish call.
type Message struct {
	Topic   string
	Payload any
}

// Publisher records published payloads for later inspection.
type Publisher struct {
	mu      sync.Mutex
	records []Message
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.records)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.records))
	copy(out, p.records)
	return out
}
