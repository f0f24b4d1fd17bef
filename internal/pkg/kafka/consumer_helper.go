package kafka

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/logger"
	"Timeline/internal/pkg/metrics"
	"Timeline/internal/pkg/retry"
	"Timeline/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second
)

type LogicFunc func(ctx context.Context, evt event.Event) error

// eventRunner 解码消息并执行业务逻辑，重试耗尽或不可重试的消息写入死信
type eventRunner struct {
	name           string
	policy         retry.Policy
	deadLetterRepo repository.DeadLetterRepo
	logic          LogicFunc
}

// eventDeadLetter 事件死信载荷，保留原始消息便于人工处理
type eventDeadLetter struct {
	Topic     string          `json:"topic"`
	Partition int32           `json:"partition"`
	Offset    int64           `json:"offset"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

// handle 只有死信也写入失败时返回错误
func (r *eventRunner) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = logger.WithTraceID(ctx, "kafka-"+r.name, "")

	evt, err := event.Decode(msg.Value)
	if err != nil {
		log.WarnContext(ctx, "malformed event", "consumer", r.name, "offset", msg.Offset, "err", err)
		return r.deadLetter(ctx, msg, err, 0)
	}

	attempts := 0
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		attempts++
		return r.logic(ctx, evt)
	}, func(err error, wait time.Duration) {
		log.WarnContext(ctx, "process event retry", "consumer", r.name, "type", evt.Type(), "wait", wait, "err", err)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.ErrorContext(ctx, "process event failed", "consumer", r.name, "type", evt.Type(), "attempts", attempts, "err", err)
	return r.deadLetter(ctx, msg, err, attempts)
}

func (r *eventRunner) deadLetter(ctx context.Context, msg *sarama.ConsumerMessage, cause error, attempts int) error {
	payload := &eventDeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
	}
	if json.Valid(msg.Value) {
		payload.Value = msg.Value
	} else {
		payload.Raw = string(msg.Value)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = r.deadLetterRepo.Save(ctx, &model.DeadLetter{
		Kind:      model.DeadLetterKindEvent,
		Payload:   string(b),
		LastError: cause.Error(),
		Attempts:  attempts,
	})
	if err != nil {
		return err
	}
	metrics.DeadLettersTotal.WithLabelValues(model.DeadLetterKindEvent).Inc()
	return nil
}

// pullMessageBatch 拉取一批消息并执行业务逻辑
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, runner *eventRunner) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				if len(batch) > 0 {
					processBatch(session, batch, runner)
				}
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				processBatch(session, batch, runner)
				// 清空缓冲区 & 重值定时器
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				processBatch(session, batch, runner)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 并发处理一批消息，全部完成后提交最后一条的位点
// 会话结束时不提交，未完成的消息在重新分配后再次投递
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, runner *eventRunner) {
	if !runBatch(session.Context(), messages, runner) {
		return
	}
	if len(messages) > 0 {
		lastMsg := messages[len(messages)-1]
		session.MarkMessage(lastMsg, "")
	}
}

func runBatch(ctx context.Context, messages []*sarama.ConsumerMessage, runner *eventRunner) bool {
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := true

	for _, msg := range messages {
		wg.Add(1)

		go func(m *sarama.ConsumerMessage) {
			defer wg.Done()
			var retryInterval = 100 * time.Millisecond

			for {
				err := runner.handle(ctx, m)
				if err == nil {
					return
				}
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					mu.Lock()
					completed = false
					mu.Unlock()
					return
				}

				// 死信写入失败，持续重试直到成功或会话结束
				log.Error("save event dead letter error", "consumer", runner.name, "offset", m.Offset, "err", err)
				select {
				case <-ctx.Done():
					mu.Lock()
					completed = false
					mu.Unlock()
					return
				case <-time.After(retryInterval):
				}

				retryInterval *= 2
				if retryInterval > 5*time.Second {
					retryInterval = 5 * time.Second
				}
			}
		}(msg)
	}

	wg.Wait()
	return completed
}
