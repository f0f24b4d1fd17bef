package kafka

import (
	"Timeline/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	postConsumer sarama.ConsumerGroup
	postHandler  sarama.ConsumerGroupHandler

	followConsumer sarama.ConsumerGroup
	followHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(
	cfg *config.Config,
	postHandler *PostEventsHandler,
	followHandler *FollowEventsHandler,
) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	postConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaPostConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	followConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaFollowConsumer.GroupID, saramaCfg)
	if err != nil {
		_ = postConsumer.Close()
		return nil, err
	}

	return &ConsumerManager{
		postConsumer:   postConsumer,
		postHandler:    postHandler,
		followConsumer: followConsumer,
		followHandler:  followHandler,
	}, nil
}

// Start 启动所有消费者，阻塞直到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context, cfg *config.Config) error {
	// 启动 Post Consumer
	go consumeLoop(ctx, "post", cfg.KafkaPostConsumer.Topic, m.postConsumer, m.postHandler)

	// 启动 Follow Consumer
	go consumeLoop(ctx, "follow", cfg.KafkaFollowConsumer.Topic, m.followConsumer, m.followHandler)

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.postConsumer.Close(); err != nil {
		log.Error("Failed to close post consumer", "err", err)
	}
	if err := m.followConsumer.Close(); err != nil {
		log.Error("Failed to close follow consumer", "err", err)
	}
	return nil
}

func consumeLoop(ctx context.Context, name, topic string, group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler) {
	log.Info("consumer started", "name", name, "topic", topic)
	go func() {
		for err := range group.Errors() {
			log.Error("consumer group error", "name", name, "err", err)
		}
	}()
	for {
		if err := group.Consume(ctx, []string{topic}, handler); err != nil {
			log.Error("Error from consumer", "name", name, "err", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
