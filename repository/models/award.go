package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Award statuses. pending_onchain is the durable intent written before the
// ledger grant; confirmed and failed are terminal.
const (
	AwardStatusPending   = "pending_onchain"
	AwardStatusConfirmed = "confirmed"
	AwardStatusFailed    = "failed"
)

// StudentAward links one student to one achievement grant. The partial
// unique index blocks a second pending/confirmed award for the same pair at
// the storage layer; failed awards do not participate, so a retry after
// failure inserts cleanly.
type StudentAward struct {
	ID            string    `gorm:"column:award_id;primaryKey" json:"id"`
	StudentID     string    `gorm:"not null;index:idx_award_once,unique,where:status <> 'failed'" json:"studentId"`
	AchievementID string    `gorm:"not null;index:idx_award_once,unique,where:status <> 'failed'" json:"achievementId"`
	Status        string    `gorm:"column:status;not null;default:pending_onchain" json:"status"`
	TxHash        *string   `json:"txHash"`
	AwardedBy     *string   `json:"awardedBy"`
	DateAwarded   time.Time `json:"dateAwarded"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Student     *User        `gorm:"foreignKey:StudentID;references:ID" json:"student,omitempty"`
	Achievement *Achievement `gorm:"foreignKey:AchievementID;references:ID" json:"achievement,omitempty"`
	Awarder     *User        `gorm:"foreignKey:AwardedBy;references:ID" json:"awarder,omitempty"`
}

func (a *StudentAward) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.DateAwarded.IsZero() {
		a.DateAwarded = time.Now()
	}
	return nil
}
