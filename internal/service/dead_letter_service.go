package service

import (
	"Timeline/internal/api/config"
	"Timeline/internal/model"
	"Timeline/internal/repository"
	"context"
	log "log/slog"

	"github.com/goccy/go-json"
)

var replayableKinds = []string{model.DeadLetterKindFanoutBatch, model.DeadLetterKindBackfill}

type ReplayResult struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
	Parked   int `json:"parked"`
	Skipped  int `json:"skipped"`
}

type DeadLetterService interface {
	Replay(ctx context.Context, limit int) (*ReplayResult, error)
}

type DeadLetterServiceImpl struct {
	deadLetterRepo repository.DeadLetterRepo
	fanoutSvc      FanoutService
	backfillSvc    BackfillService
	cfg            config.DeadLetterConfig
}

func NewDeadLetterService(
	deadLetterRepo repository.DeadLetterRepo,
	fanoutSvc FanoutService,
	backfillSvc BackfillService,
	cfg config.DeadLetterConfig,
) DeadLetterService {
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 100
	}
	if cfg.MaxReplays <= 0 {
		cfg.MaxReplays = 10
	}
	return &DeadLetterServiceImpl{
		deadLetterRepo: deadLetterRepo,
		fanoutSvc:      fanoutSvc,
		backfillSvc:    backfillSvc,
		cfg:            cfg,
	}
}

// Replay 重放扩散与回填死信；事件类死信只能人工处理，直接跳过
func (s *DeadLetterServiceImpl) Replay(ctx context.Context, limit int) (*ReplayResult, error) {
	if limit <= 0 {
		limit = s.cfg.ReplayLimit
	}
	letters, err := s.deadLetterRepo.ListPending(ctx, replayableKinds, limit)
	if err != nil {
		return nil, err
	}

	res := &ReplayResult{}
	for _, letter := range letters {
		if err = ctx.Err(); err != nil {
			return res, err
		}

		var replayErr error
		switch letter.Kind {
		case model.DeadLetterKindFanoutBatch:
			batch := &FanoutBatch{}
			if replayErr = json.Unmarshal([]byte(letter.Payload), batch); replayErr == nil {
				_, replayErr = s.fanoutSvc.DispatchBatch(ctx, batch)
			}
		case model.DeadLetterKindBackfill:
			req := &BackfillRequest{}
			if replayErr = json.Unmarshal([]byte(letter.Payload), req); replayErr == nil {
				_, replayErr = s.backfillSvc.Replay(ctx, req)
			}
		default:
			res.Skipped++
			continue
		}

		if replayErr == nil {
			if err = s.deadLetterRepo.MarkResolved(ctx, letter.ID); err != nil {
				log.ErrorContext(ctx, "mark dead letter resolved error", "id", letter.ID, "err", err)
			}
			res.Resolved++
			continue
		}

		park := letter.Replays+1 >= s.cfg.MaxReplays
		if err = s.deadLetterRepo.MarkReplayFailed(ctx, letter.ID, replayErr.Error(), park); err != nil {
			log.ErrorContext(ctx, "mark dead letter failed error", "id", letter.ID, "err", err)
		}
		if park {
			res.Parked++
			log.ErrorContext(ctx, "dead letter parked", "id", letter.ID, "kind", letter.Kind, "err", replayErr)
		} else {
			res.Failed++
		}
	}
	return res, nil
}
