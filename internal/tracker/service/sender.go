package service

import (
	"context"
	"fmt"
	"sync"

	"simba/internal/platform/kafka"
	"simba/internal/tracker/models"
)

// Sender delivers one generated request downstream.
type Sender interface {
	Send(ctx context.Context, rec models.Request) error
}

// KafkaSender publishes the raw output message keyed by share id.
type KafkaSender struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaSender(producer *kafka.Producer, topic string) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic}
}

func (k *KafkaSender) Send(ctx context.Context, rec models.Request) error {
	if rec.OutputMessageRaw == "" {
		return fmt.Errorf("request %d has no output message", rec.ID)
	}
	return k.producer.Publish(ctx, k.topic, []byte(rec.ShareID), []byte(rec.OutputMessageRaw))
}

// MemorySender collects deliveries for tests and in-process runs.
type MemorySender struct {
	mu   sync.Mutex
	sent []models.Request
	fail error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// FailWith makes every subsequent Send return err. Pass nil to recover.
func (m *MemorySender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemorySender) Send(_ context.Context, rec models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, rec)
	return nil
}

// Sent snapshots the delivered requests.
func (m *MemorySender) Sent() []models.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Request, len(m.sent))
	copy(out, m.sent)
	return out
}
