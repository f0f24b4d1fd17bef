package model

import "time"

const (
	DeadLetterKindFanoutBatch = "fanout_batch"
	DeadLetterKindBackfill    = "backfill"
	DeadLetterKindEvent       = "event"
)

const (
	DeadLetterPending  = "pending"
	DeadLetterResolved = "resolved"
	DeadLetterParked   = "parked" // 需要人工处理
)

type DeadLetter struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind      string    `gorm:"type:varchar(32);not null;index:idx_dead_letter_status,priority:2" json:"kind"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	LastError string    `gorm:"type:text" json:"last_error"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	Replays   int       `gorm:"not null;default:0" json:"replays"`
	Status    string    `gorm:"type:varchar(16);not null;index:idx_dead_letter_status,priority:1" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DeadLetter) TableName() string {
	return "dead_letters"
}
