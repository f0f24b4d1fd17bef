package job

import (
	"Timeline/internal/pkg/consts"
	"Timeline/internal/service"
	"context"
	log "log/slog"
	"time"
)

const (
	CounterModeDirty = "dirty"
	CounterModeFull  = "full"
)

// CounterReconcileJob 按脏集合或全量重算用户计数
type CounterReconcileJob struct {
	counterSvc service.CounterService
	mode       string
}

func NewCounterReconcileJob(counterSvc service.CounterService, mode string) *CounterReconcileJob {
	return &CounterReconcileJob{
		counterSvc: counterSvc,
		mode:       mode,
	}
}

func (s *CounterReconcileJob) Run() {
	ctx := newJobContext("counter-" + s.mode)
	ttl := 5 * time.Minute
	if s.mode == CounterModeFull {
		ttl = 2 * time.Hour
	}

	runExclusive(ctx, consts.CounterReconcileLock+s.mode, ttl, func(ctx context.Context) {
		start := time.Now()
		var n int
		var err error
		if s.mode == CounterModeFull {
			n, err = s.counterSvc.ReconcileAll(ctx)
		} else {
			n, err = s.counterSvc.ReconcileDirty(ctx)
		}
		if err != nil {
			log.ErrorContext(ctx, "reconcile counters error", "mode", s.mode, "reconciled", n, "err", err)
			return
		}
		if n > 0 || s.mode == CounterModeFull {
			log.InfoContext(ctx, "reconcile counters success", "mode", s.mode, "reconciled", n, "cost", time.Since(start))
		}
	})
}
