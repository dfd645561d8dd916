package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nysenate/openleg-sync/pkg/errors"
	"github.com/nysenate/openleg-sync/pkg/resilience"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishBatchEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "records", nil)

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "bill/2023-S1", Value: map[string]string{"title": "2023-S1"}},
		{Key: "bill/2023-S1A", Value: map[string]string{"title": "2023-S1A"}},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 2)
	assert.Equal(t, "bill/2023-S1", string(w.written[0].Key))
	assert.JSONEq(t, `{"title":"2023-S1A"}`, string(w.written[1].Value))

	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	w := &fakeWriter{}
	err := newProducer(w, "records", nil).Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
	assert.Empty(t, w.written)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	err := newProducer(&fakeWriter{err: boom}, "records", nil).Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorIs(t, err, boom)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	close(r.drained)
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func runUntilDrained(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	<-r.drained
	cancel()
	require.NoError(t, <-done)
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestConsumerDropsPermanentFailures(t *testing.T) {
	r := &fakeReader{
		pending: []kafka.Message{{Offset: 1, Value: []byte("ok")}, {Offset: 2, Value: []byte("bad")}, {Offset: 3, Value: []byte("ok")}},
		drained: make(chan struct{}),
	}
	var seen []string
	c := newConsumer(r, "requests", func(_ context.Context, _, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "bad" {
			return errors.New("rejected")
		}
		return nil
	}, fastRetry, nil)

	runUntilDrained(t, c, r)

	assert.Equal(t, []string{"ok", "bad", "ok"}, seen, "permanent failures are not retried")
	require.Len(t, r.committed, 3)
	assert.Equal(t, int64(3), r.committed[2].Offset)
}

func TestConsumerRetriesRetryableFailures(t *testing.T) {
	r := &fakeReader{
		pending: []kafka.Message{{Offset: 1, Value: []byte("flaky")}, {Offset: 2, Value: []byte("ok")}},
		drained: make(chan struct{}),
	}
	var seen []string
	failures := 3
	c := newConsumer(r, "requests", func(_ context.Context, _, value []byte) error {
		seen = append(seen, string(value))
		if string(value) == "flaky" && failures > 0 {
			failures--
			return fmt.Errorf("%w: upstream unavailable", apperrors.ErrTransport)
		}
		return nil
	}, fastRetry, nil)

	runUntilDrained(t, c, r)

	assert.Equal(t, []string{"flaky", "flaky", "flaky", "flaky", "ok"}, seen,
		"the failing message is handled again before the next one")
	require.Len(t, r.committed, 2)
	assert.Equal(t, int64(1), r.committed[0].Offset)
	assert.Equal(t, int64(2), r.committed[1].Offset)
}

func TestConsumerLeavesFailingMessageOnCancel(t *testing.T) {
	r := &fakeReader{
		pending: []kafka.Message{{Offset: 1, Value: []byte("down")}},
		drained: make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	c := newConsumer(r, "requests", func(context.Context, []byte, []byte) error {
		attempts++
		if attempts == 4 {
			cancel()
		}
		return apperrors.ErrTimeout
	}, fastRetry, nil)

	require.NoError(t, c.Run(ctx))
	assert.GreaterOrEqual(t, attempts, 4)
	assert.Empty(t, r.committed)
}

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON[struct {
		Processor string `json:"processor"`
	}]([]byte(`{"processor":"bills"}`))
	require.NoError(t, err)
	assert.Equal(t, "bills", v.Processor)

	_, err = DecodeJSON[map[string]any]([]byte(`{`))
	assert.Error(t, err)
}
