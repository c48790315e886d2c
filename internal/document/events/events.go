// Package events publishes document lifecycle events for external audit and
// notification consumers. Publishing is best effort: it never blocks the
// caller and never returns an error.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"signet/internal/document/models"
)

const TypeDocumentSigned = "document.signed"

// DocumentSigned is the payload of a document.signed event.
type DocumentSigned struct {
	Type          string              `json:"type"`
	DocumentID    string              `json:"document_id"`
	TypeCode      models.DocumentType `json:"type_code"`
	OwnerUserID   string              `json:"owner_user_id"`
	CanonicalHash string              `json:"canonical_hash"`
	SignedAt      time.Time           `json:"signed_at"`
	SignerEmail   string              `json:"signer_email"`
	RequestID     string              `json:"request_id,omitempty"`
}

// NewDocumentSigned builds the event from a freshly signed document.
func NewDocumentSigned(doc *models.Document, requestID string) DocumentSigned {
	ev := DocumentSigned{
		Type:          TypeDocumentSigned,
		DocumentID:    doc.ID.String(),
		TypeCode:      doc.TypeCode,
		OwnerUserID:   doc.OwnerUserID.String(),
		CanonicalHash: doc.CanonicalHash,
		RequestID:     requestID,
	}
	if doc.SignedAt != nil {
		ev.SignedAt = *doc.SignedAt
	}
	if doc.Evidence != nil {
		ev.SignerEmail = doc.Evidence.SignerEmail
	}
	return ev
}

type Publisher interface {
	PublishSigned(ctx context.Context, ev DocumentSigned)
}

// producer is the subset of *kgo.Client the Kafka publisher uses.
type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaPublisher writes events keyed by document ID so all events of one
// document land on the same partition.
type KafkaPublisher struct {
	client producer
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(client producer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

func (p *KafkaPublisher) PublishSigned(ctx context.Context, ev DocumentSigned) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode document event", "error", err, "document_id", ev.DocumentID)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.DocumentID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	// Detached from the request so a finished request does not abort delivery.
	p.client.TryProduce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("failed to publish document event",
				"error", err,
				"document_id", ev.DocumentID,
				"event_type", ev.Type,
			)
		}
	})
}

// LogPublisher logs events instead of shipping them. Used when no brokers are
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishSigned(ctx context.Context, ev DocumentSigned) {
	p.logger.InfoContext(ctx, "document event",
		"event_type", ev.Type,
		"document_id", ev.DocumentID,
		"type_code", ev.TypeCode,
		"owner_user_id", ev.OwnerUserID,
		"request_id", ev.RequestID,
	)
}
