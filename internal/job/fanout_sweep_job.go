package job

import (
	"Timeline/internal/pkg/consts"
	"Timeline/internal/service"
	"context"
	log "log/slog"
	"time"
)

// FanoutSweepJob 重新扩散长时间停留在 pending 的帖子
type FanoutSweepJob struct {
	fanoutSvc service.FanoutService
}

func NewFanoutSweepJob(fanoutSvc service.FanoutService) *FanoutSweepJob {
	return &FanoutSweepJob{fanoutSvc: fanoutSvc}
}

func (s *FanoutSweepJob) Run() {
	ctx := newJobContext("fanout-sweep")
	runExclusive(ctx, consts.FanoutSweepLock, 10*time.Minute, func(ctx context.Context) {
		n, err := s.fanoutSvc.Sweep(ctx)
		if err != nil {
			log.ErrorContext(ctx, "fanout sweep error", "dispatched", n, "err", err)
			return
		}
		if n > 0 {
			log.InfoContext(ctx, "fanout sweep success", "dispatched", n)
		}
	})
}
