package queue

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/sirupsen/logrus"
)

var _ RenderQueue = (*KafkaRenderQueue)(nil)

// KafkaRenderQueue publishes render events keyed by document id, so the events
// of one document stay ordered within a partition.
type KafkaRenderQueue struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaRenderQueue(brokers, topic string) (*KafkaRenderQueue, error) {
	if topic == "" {
		topic = DefaultRenderTopic
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	q := &KafkaRenderQueue{producer: producer, topic: topic}
	go q.drainEvents()

	return q, nil
}

// drainEvents logs delivery failures reported asynchronously by the producer.
func (q *KafkaRenderQueue) drainEvents() {
	for e := range q.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logrus.Errorf("render event delivery failed: %v", ev.TopicPartition.Error)
			}
		case kafka.Error:
			logrus.Errorf("kafka producer error: %v", ev)
		}
	}
}

func (q *KafkaRenderQueue) PublishRendered(ctx context.Context, event *RenderEvent) error {
	value, err := event.MarshalBinary()
	if err != nil {
		return err
	}

	return q.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &q.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.DocumentID),
		Value:          value,
	}, nil)
}

func (q *KafkaRenderQueue) Close() {
	q.producer.Flush(5000)
	q.producer.Close()
}
