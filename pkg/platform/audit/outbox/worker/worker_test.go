package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedcred/internal/platform/kafka/producer"
	"fedcred/pkg/platform/audit/outbox"
	"fedcred/pkg/platform/audit/outbox/metrics"
	"fedcred/pkg/platform/audit/outbox/store/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*producer.Message
	failKey  string
}

func (p *recordingPublisher) Produce(_ context.Context, msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKey != "" && string(msg.Key) == p.failKey {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestRunOnce_PublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w := New(store, pub, WithTopic("test.topic"), WithMetrics(m))

	require.NoError(t, store.Append(ctx, outbox.NewEntry("credential", "cred_a", "credential.verified", []byte(`{"valid":true}`), time.Now())))
	require.NoError(t, store.Append(ctx, outbox.NewEntry("credential", "cred_b", "credential.renewed", []byte(`{}`), time.Now())))

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Equal(t, 2, pub.count())
	msg := pub.messages[0]
	assert.Equal(t, "test.topic", msg.Topic)
	assert.Equal(t, "cred_a", string(msg.Key))
	assert.Equal(t, "credential.verified", msg.Headers["event_type"])
	assert.Equal(t, "credential", msg.Headers["aggregate_type"])

	pending, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Published.WithLabelValues("credential.verified")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Published.WithLabelValues("credential.renewed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Pending))
}

func TestRunOnce_FailedEntryStaysPending(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &recordingPublisher{failKey: "cred_bad"}
	m := metrics.New(prometheus.NewRegistry())
	w := New(store, pub, WithMetrics(m))

	require.NoError(t, store.Append(ctx, outbox.NewEntry("credential", "cred_bad", "credential.verified", []byte(`{}`), time.Now())))
	require.NoError(t, store.Append(ctx, outbox.NewEntry("credential", "cred_ok", "credential.verified", []byte(`{}`), time.Now())))

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Failures.WithLabelValues(metrics.StagePublish)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Pending))
}

func TestRunOnce_PrunesWithRetention(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := metrics.New(prometheus.NewRegistry())
	w := New(store, &recordingPublisher{}, WithRetention(time.Nanosecond), WithMetrics(m))

	require.NoError(t, store.Append(ctx, outbox.NewEntry("credential", "cred_a", "credential.issued", []byte(`{}`), time.Now())))
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, store.All())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Pruned))
}

func TestStartStop_DrainsPending(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	w := New(store, pub, WithPollInterval(time.Hour))

	w.Start(context.Background())
	require.NoError(t, store.Append(context.Background(), outbox.NewEntry("credential", "cred_a", "credential.issued", []byte(`{}`), time.Now())))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, 1, pub.count())
}
