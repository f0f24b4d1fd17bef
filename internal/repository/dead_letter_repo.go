package repository

import (
	"Timeline/internal/model"
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeadLetterRepo 死信存储，MySQL 与 MongoDB 各有一份实现
type DeadLetterRepo interface {
	Save(ctx context.Context, letter *model.DeadLetter) error
	ListPending(ctx context.Context, kinds []string, limit int) ([]*model.DeadLetter, error)
	MarkResolved(ctx context.Context, id string) error
	MarkReplayFailed(ctx context.Context, id string, lastError string, park bool) error
}

type deadLetterRepoImpl struct {
	db *gorm.DB
}

func NewDeadLetterRepo(db *gorm.DB) DeadLetterRepo {
	return &deadLetterRepoImpl{db: db}
}

func (s *deadLetterRepoImpl) Save(ctx context.Context, letter *model.DeadLetter) error {
	if letter.ID == "" {
		letter.ID = uuid.NewString()
	}
	if letter.Status == "" {
		letter.Status = model.DeadLetterPending
	}
	return s.db.WithContext(ctx).Create(letter).Error
}

// ListPending kinds 为空时不过滤类型
func (s *deadLetterRepoImpl) ListPending(ctx context.Context, kinds []string, limit int) ([]*model.DeadLetter, error) {
	letters := make([]*model.DeadLetter, 0, limit)
	query := s.db.WithContext(ctx).Where("status = ?", model.DeadLetterPending)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	err := query.
		Order("created_at asc").
		Limit(limit).
		Find(&letters).Error
	if err != nil {
		return nil, err
	}
	return letters, nil
}

func (s *deadLetterRepoImpl) MarkResolved(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).
		Model(&model.DeadLetter{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.DeadLetterResolved,
			"updated_at": time.Now(),
		}).Error
}

func (s *deadLetterRepoImpl) MarkReplayFailed(ctx context.Context, id string, lastError string, park bool) error {
	status := model.DeadLetterPending
	if park {
		status = model.DeadLetterParked
	}
	return s.db.WithContext(ctx).
		Model(&model.DeadLetter{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
			"replays":    gorm.Expr("replays + 1"),
			"updated_at": time.Now(),
		}).Error
}
