package kafka

import (
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/retry"
	"Timeline/internal/repository"
	"Timeline/internal/service"
	"context"
	"fmt"
	log "log/slog"

	"github.com/IBM/sarama"
)

// PostEventsHandler 消费帖子事件：扩散、删帖清理、作者注销清理
type PostEventsHandler struct {
	fanoutSvc service.FanoutService
	feedSvc   service.FeedService
	authorSvc service.AuthorService
	runner    *eventRunner
}

func NewPostEventsHandler(
	fanoutSvc service.FanoutService,
	feedSvc service.FeedService,
	authorSvc service.AuthorService,
	deadLetterRepo repository.DeadLetterRepo,
	policy retry.Policy,
) *PostEventsHandler {
	h := &PostEventsHandler{
		fanoutSvc: fanoutSvc,
		feedSvc:   feedSvc,
		authorSvc: authorSvc,
	}
	h.runner = &eventRunner{
		name:           "post-events",
		policy:         policy,
		deadLetterRepo: deadLetterRepo,
		logic:          h.logic,
	}
	return h
}

func (s *PostEventsHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("post events consumer setup")
	return nil
}

func (s *PostEventsHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("post events consumer cleanup")
	return nil
}

func (s *PostEventsHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("post events consume claim", "topic", claim.Topic(), "partition", claim.Partition())
	return pullMessageBatch(session, claim, s.runner)
}

func (s *PostEventsHandler) logic(ctx context.Context, evt event.Event) error {
	switch e := evt.(type) {
	case *event.PostCreated:
		_, err := s.fanoutSvc.Dispatch(ctx, e)
		return err
	case *event.PostDeleted:
		// 写入端已同步清理，这里兜住删除时仍在进行的扩散
		_, err := s.feedSvc.RemovePosts(ctx, nil, e.PostID)
		return err
	case *event.AuthorRemoved:
		_, err := s.authorSvc.Purge(ctx, e.AuthorID)
		return err
	default:
		return retry.Permanent(fmt.Errorf("%w: unexpected %s on post topic", event.ErrMalformed, evt.Type()))
	}
}
