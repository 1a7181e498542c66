package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Achievement is a catalog entry students can be awarded. The title is the
// identity key used to look up the matching on-chain entry.
type Achievement struct {
	ID               string     `gorm:"column:achievement_id;primaryKey" json:"id"`
	Title            string     `gorm:"uniqueIndex;not null" json:"title"`
	Description      string     `json:"description"`
	TokenReward      int64      `gorm:"not null;check:token_reward >= 0" json:"tokenReward"`
	CreatedBy        *string    `json:"createdBy"`
	OnChainCreated   bool       `gorm:"not null;default:false" json:"onChainCreated"`
	OnChainTx        *string    `json:"onChainTx"`
	OnChainUpdateTx  *string    `json:"onChainUpdateTx"`
	OnChainUpdatedAt *time.Time `json:"onChainUpdatedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	Creator *User `gorm:"foreignKey:CreatedBy;references:ID" json:"creator,omitempty"`
}

func (a *Achievement) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
