package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reward is a redeemable perk in the catalog, mirrored on-chain the same way
// an Achievement is.
type Reward struct {
	ID               string     `gorm:"column:reward_id;primaryKey" json:"id"`
	Title            string     `gorm:"uniqueIndex;not null" json:"title"`
	Description      string     `json:"description"`
	TokenCost        int64      `gorm:"not null;check:token_cost >= 0" json:"tokenCost"`
	CreatedBy        *string    `json:"createdBy"`
	OnChainCreated   bool       `gorm:"not null;default:false" json:"onChainCreated"`
	OnChainTx        *string    `json:"onChainTx"`
	OnChainUpdateTx  *string    `json:"onChainUpdateTx"`
	OnChainUpdatedAt *time.Time `json:"onChainUpdatedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	Creator *User `gorm:"foreignKey:CreatedBy;references:ID" json:"creator,omitempty"`
}

func (r *Reward) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
