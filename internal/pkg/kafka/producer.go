package kafka

import (
	"Timeline/internal/api/config"
	"Timeline/internal/pkg/event"
	"context"
	"fmt"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// Producer 将领域事件写入对应 topic，实现 event.Publisher
type Producer struct {
	producer    sarama.SyncProducer
	postTopic   string
	followTopic string
}

func NewProducer(cfg *config.Config) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, newProducerConfig(cfg.Kafka))
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	return NewProducerWithClient(sp, cfg.KafkaPostConsumer.Topic, cfg.KafkaFollowConsumer.Topic), nil
}

func NewProducerWithClient(sp sarama.SyncProducer, postTopic, followTopic string) *Producer {
	return &Producer{
		producer:    sp,
		postTopic:   postTopic,
		followTopic: followTopic,
	}
}

func (p *Producer) Publish(ctx context.Context, evt event.Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	value, err := event.Encode(evt)
	if err != nil {
		return errors.Wrapf(err, "encode %s", evt.Type())
	}

	topic := p.postTopic
	if evt.Stream() == event.StreamFollows {
		topic = p.followTopic
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(evt.Key()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(evt.Type())},
		},
	})
	if err != nil {
		return errors.WithMessage(err, fmt.Sprintf("publish %s to %s", evt.Type(), topic))
	}
	log.DebugContext(ctx, "event published", "type", evt.Type(), "topic", topic, "partition", partition, "offset", offset)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
