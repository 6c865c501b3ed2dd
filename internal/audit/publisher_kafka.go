package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"helixpass/internal/domain"
	"helixpass/internal/platform/config"
)

// KafkaPublisher streams appended audit entries to a Kafka topic keyed by
// subject so per-subject ordering is preserved. Produce errors are logged and
// dropped: the postgres append is the record of truth, the stream is an echo
// for downstream consumers (compliance export, user notifications).
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the brokers and ensures the audit topic
// exists. Returns nil if no brokers are configured.
func NewKafkaPublisher(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, cfg.AuditTopic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("create audit topic: %w", resp.Err)
	}

	return &KafkaPublisher{client: client, topic: cfg.AuditTopic, logger: logger}, nil
}

type streamEntry struct {
	ID         string            `json:"id"`
	SubjectID  string            `json:"subject_id"`
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	Decision   string            `json:"decision,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	LinkedTxID string            `json:"linked_tx_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Publish produces the entry asynchronously. Never blocks the caller beyond
// serialization; failures are logged, not returned.
func (p *KafkaPublisher) Publish(ctx context.Context, entry *domain.AuditEntry) {
	payload, err := json.Marshal(streamEntry{
		ID:         entry.ID.String(),
		SubjectID:  entry.SubjectID.String(),
		Category:   string(entry.Category),
		Action:     entry.Action,
		Decision:   entry.Decision,
		Metadata:   entry.Metadata,
		LinkedTxID: entry.LinkedTxID,
		Timestamp:  entry.Timestamp,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal audit entry for stream", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.SubjectID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.WarnContext(ctx, "audit stream publish failed",
				"action", entry.Action,
				"error", err,
			)
		}
	})
}

// Close flushes outstanding records and closes the client.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
