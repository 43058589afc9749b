package notify

import (
	"context"
	"sync"
)

// MemorySink captures published events for tests.
type MemorySink struct {
	mu      sync.Mutex
	records []MemoryRecord
}

// MemoryRecord is one captured publish call.
type MemoryRecord struct {
	Topic string
	Key   string
	Value []byte
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, topic string, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.records = append(s.records, MemoryRecord{Topic: topic, Key: string(key), Value: v})
	return nil
}

// Records returns a snapshot of everything published so far.
func (s *MemorySink) Records() []MemoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemoryRecord, len(s.records))
	copy(out, s.records)
	return out
}
