package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "simba/pkg/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherAndWorkerRoundTrip(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher(8, WithClock(func() time.Time { return at }))
	sink := NewMemorySink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(sink, "address-correction-notify", d.Inbox(), testLogger())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.NoError(t, d.Enqueue(ctx, "SHARE-1"))
	require.NoError(t, d.Enqueue(ctx, "SHARE-2"))

	require.Eventually(t, func() bool {
		return len(sink.Records()) == 2
	}, time.Second, 10*time.Millisecond)

	records := sink.Records()
	assert.Equal(t, "address-correction-notify", records[0].Topic)
	assert.Equal(t, "SHARE-1", records[0].Key)

	var event Event
	require.NoError(t, json.Unmarshal(records[0].Value, &event))
	assert.Equal(t, id.ShareID("SHARE-1"), event.OriginalShareID)
	assert.Equal(t, at, event.OccurredAt)
	assert.NotEmpty(t, event.MessageID)

	cancel()
	<-done
}

func TestEnqueueFailsWhenInboxStaysFull(t *testing.T) {
	d := NewDispatcher(1, WithLogger(testLogger()), WithEnqueueWait(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, "SHARE-1"))
	// no worker draining, so the bounded wait expires and the miss surfaces
	err := d.Enqueue(ctx, "SHARE-2")
	require.ErrorIs(t, err, ErrInboxFull)

	assert.Len(t, d.Inbox(), 1)
}

func TestEnqueueWaitsForWorkerToDrain(t *testing.T) {
	d := NewDispatcher(1, WithLogger(testLogger()), WithEnqueueWait(time.Second))
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, "SHARE-1"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		<-d.inbox
	}()

	assert.NoError(t, d.Enqueue(ctx, "SHARE-2"), "freed slot admits the waiting event")
}
