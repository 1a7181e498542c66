package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Redemption statuses. failed rows exist for auditability only; balance
// arithmetic deducts approved rows exclusively.
const (
	RedemptionStatusApproved = "approved"
	RedemptionStatusRejected = "rejected"
	RedemptionStatusFailed   = "failed"
)

// Redemption records one reward exchange by one student.
type Redemption struct {
	ID        string    `gorm:"column:redemption_id;primaryKey" json:"id"`
	StudentID string    `gorm:"not null;index" json:"studentId"`
	RewardID  string    `gorm:"not null;index" json:"rewardId"`
	Status    string    `gorm:"not null" json:"status"`
	TxHash    *string   `json:"txHash"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Student *User   `gorm:"foreignKey:StudentID;references:ID" json:"student,omitempty"`
	Reward  *Reward `gorm:"foreignKey:RewardID;references:ID" json:"reward,omitempty"`
}

func (r *Redemption) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
