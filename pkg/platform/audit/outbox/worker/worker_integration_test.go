//go:build integration

package worker_test

import (
	"context"
	"time"

	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"fedcred/internal/platform/kafka/producer"
	"fedcred/pkg/platform/audit/outbox"
	outboxpostgres "fedcred/pkg/platform/audit/outbox/store/postgres"
	"fedcred/pkg/platform/audit/outbox/worker"
	"fedcred/pkg/testutil/containers"
)

type WorkerIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	kafka    *containers.KafkaContainer
	store    *outboxpostgres.Store
	producer *producer.Producer
}

func TestWorkerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WorkerIntegrationSuite))
}

func (s *WorkerIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.kafka = mgr.GetKafka(s.T())
	s.store = outboxpostgres.New(s.postgres.DB)

	cfg := producer.DefaultConfig(s.kafka.Brokers)
	cfg.DeliveryTimeout = 10 * time.Second
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *WorkerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *WorkerIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

// Entries written to the outbox reach the topic and are marked processed.
func (s *WorkerIntegrationSuite) TestOutboxToKafkaFlow() {
	ctx := context.Background()
	topic := "test-credential-events"
	s.Require().NoError(s.producer.EnsureTopic(ctx, topic, 1, 1))

	entry, err := outbox.NewJSONEntry("credential", "cred_flow", "credential.verified",
		map[string]any{"valid": true, "credentialId": "cred_flow"}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(ctx, entry))

	w := worker.New(s.store, s.producer, worker.WithTopic(topic))
	n, err := w.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	pending, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.kafka.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(pollCtx)
	s.Require().NoError(fetches.Err())

	var found bool
	fetches.EachRecord(func(r *kgo.Record) {
		if string(r.Key) == "cred_flow" {
			found = true
		}
	})
	s.True(found)
}
