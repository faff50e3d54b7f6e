package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaRepo publishes events as JSON to a Kafka topic for downstream SIEM consumers.
type KafkaRepo struct {
	writer *kafka.Writer
}

func NewKafkaRepo(brokers []string, topic string) (*KafkaRepo, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("audit: kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaRepo{writer: w}, nil
}

// Append keys messages by actor so one admin's events stay ordered within a partition.
func (r *KafkaRepo) Append(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(e.ActorUserID),
		Value: payload,
		Time:  e.CreatedAt,
	})
}

func (r *KafkaRepo) Close() error {
	if r == nil || r.writer == nil {
		return nil
	}
	return r.writer.Close()
}

// Tee appends to every repository and joins their errors.
type Tee []Repository

func (t Tee) Append(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range t {
		if err := r.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
