package job

import (
	"Timeline/internal/pkg/consts"
	"Timeline/internal/service"
	"context"
	log "log/slog"
	"time"
)

type DeadLetterReplayJob struct {
	deadLetterSvc service.DeadLetterService
}

func NewDeadLetterReplayJob(deadLetterSvc service.DeadLetterService) *DeadLetterReplayJob {
	return &DeadLetterReplayJob{deadLetterSvc: deadLetterSvc}
}

func (s *DeadLetterReplayJob) Run() {
	ctx := newJobContext("dead-letter")
	runExclusive(ctx, consts.DeadLetterReplayLock, 10*time.Minute, func(ctx context.Context) {
		res, err := s.deadLetterSvc.Replay(ctx, 0)
		if err != nil {
			log.ErrorContext(ctx, "replay dead letters error", "err", err)
			return
		}
		if res.Resolved+res.Failed+res.Parked > 0 {
			log.InfoContext(ctx, "replay dead letters done",
				"resolved", res.Resolved,
				"failed", res.Failed,
				"parked", res.Parked,
			)
		}
	})
}
