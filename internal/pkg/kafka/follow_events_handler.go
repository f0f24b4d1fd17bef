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

// FollowEventsHandler 消费关注事件：回填与取关清理
type FollowEventsHandler struct {
	backfillSvc service.BackfillService
	feedSvc     service.FeedService
	followRepo  repository.UserFollowRepo
	runner      *eventRunner
}

func NewFollowEventsHandler(
	backfillSvc service.BackfillService,
	feedSvc service.FeedService,
	followRepo repository.UserFollowRepo,
	deadLetterRepo repository.DeadLetterRepo,
	policy retry.Policy,
) *FollowEventsHandler {
	h := &FollowEventsHandler{
		backfillSvc: backfillSvc,
		feedSvc:     feedSvc,
		followRepo:  followRepo,
	}
	h.runner = &eventRunner{
		name:           "follow-events",
		policy:         policy,
		deadLetterRepo: deadLetterRepo,
		logic:          h.logic,
	}
	return h
}

func (s *FollowEventsHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("follow events consumer setup")
	return nil
}

func (s *FollowEventsHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("follow events consumer cleanup")
	return nil
}

func (s *FollowEventsHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("follow events consume claim", "topic", claim.Topic(), "partition", claim.Partition())
	return pullMessageBatch(session, claim, s.runner)
}

func (s *FollowEventsHandler) logic(ctx context.Context, evt event.Event) error {
	switch e := evt.(type) {
	case *event.FollowCreated:
		_, err := s.backfillSvc.Backfill(ctx, e.FollowerID, e.FollowedID)
		return err
	case *event.FollowDestroyed:
		// 重新关注后收到旧的取关事件时不能清理
		edge, err := s.followRepo.GetUserFollow(ctx, e.FollowerID, e.FollowedID)
		if err != nil {
			return err
		}
		if edge != nil {
			return nil
		}
		_, err = s.feedSvc.RemoveAuthorFromFeed(ctx, nil, e.FollowerID, e.FollowedID)
		return err
	default:
		return retry.Permanent(fmt.Errorf("%w: unexpected %s on follow topic", event.ErrMalformed, evt.Type()))
	}
}
