//go:build integration

package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"signet/internal/platform/config"
	"signet/internal/platform/kafka"
	"signet/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaPublisherSuite) TestPublishedEventIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "document-events-it"
	client, err := kafka.NewClient(config.Kafka{Brokers: s.redpanda.Brokers, Topic: topic})
	s.Require().NoError(err)
	defer client.Close()
	s.Require().NoError(kafka.EnsureTopic(ctx, client, topic, 1))

	doc := signedDoc()
	pub := NewKafkaPublisher(client, topic, slog.New(slog.NewTextHandler(io.Discard, nil)))
	pub.PublishSigned(ctx, NewDocumentSigned(doc, "req-it"))
	s.Require().NoError(client.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got DocumentSigned
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(doc.ID.String(), got.DocumentID)
	s.Equal(doc.ID.String(), string(records[0].Key))
}
