// Package kafka publishes alerts to a Kafka topic for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/avalkov/mev-monitor/internal/model"
)

// Envelope wraps every published record.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func NewSink(brokers []string, topic string, cfg *sarama.Config) (*Sink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewSinkWithProducer(producer, topic), nil
}

func NewSinkWithProducer(producer sarama.SyncProducer, topic string) *Sink {
	return &Sink{topic: topic, producer: producer}
}

func (s *Sink) Close() error {
	return s.producer.Close()
}

// Publish sends an alert keyed by sender, so one sender's alerts stay in
// order on a partition.
func (s *Sink) Publish(ctx context.Context, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(Envelope{
		Type: alert.Type,
		TS:   time.Now().UnixMilli(),
		Data: data,
	})
	if err != nil {
		return err
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(alert.From),
		Value: sarama.ByteEncoder(envelope),
	})
	if err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

type Sink struct {
	topic    string
	producer sarama.SyncProducer
}
