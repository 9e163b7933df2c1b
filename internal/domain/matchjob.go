package domain

import "time"

const (
	MatchJobPending  = "pending"
	MatchJobRetrying = "retrying"
	MatchJobDone     = "done"
	MatchJobFailed   = "failed"
)

// MatchJob is one queued matching attempt. Jobs are durable: unfinished
// rows (pending or retrying) are re-enqueued at startup, so delivery is
// at-least-once and the matching attempt itself must be idempotent. A
// retrying job has a live backoff timer and is left alone by the sweep.
type MatchJob struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID   string    `gorm:"index;type:varchar(36);not null" json:"order_id"`
	Status    string    `gorm:"index;type:varchar(10);not null" json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
