package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"propertyvet/internal/screening/models"
)

const DefaultTopic = "screening.reports"

// Producer is the part of *kgo.Client the sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink produces each report to a topic keyed by request id, so all
// versions of one check land on the same partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, report models.Report) error {
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(report.RequestID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(eventName(report.State))},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce report %s: %w", report.RequestID, err)
	}
	return nil
}
