package models

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles assignable to a platform user.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// ValidRole reports whether role is one of the three platform roles.
func ValidRole(role string) bool {
	return role == RoleStudent || role == RoleFaculty || role == RoleAdmin
}

// User is a platform account. Wallet fields are mutated only by the
// wallet-link flow or an admin update; WalletConnected=true implies a
// non-null, lowercase wallet address.
type User struct {
	ID              string    `gorm:"column:user_id;primaryKey" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	Email           string    `gorm:"uniqueIndex;not null" json:"email"`
	Password        string    `gorm:"not null" json:"-"`
	Role            string    `gorm:"not null;default:student" json:"role"`
	WalletAddress   *string   `json:"walletAddress"`
	WalletConnected bool      `gorm:"not null;default:false" json:"walletConnected"`
	WalletNonce     *string   `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

var ErrInvalidWalletAddress = errors.New("invalid wallet address format")

// BeforeSave validates and lowercase-normalizes the wallet address, so every
// stored address is comparable by plain string equality.
func (u *User) BeforeSave(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.WalletAddress != nil && *u.WalletAddress != "" {
		if !common.IsHexAddress(*u.WalletAddress) {
			return ErrInvalidWalletAddress
		}
		normalized := strings.ToLower(*u.WalletAddress)
		u.WalletAddress = &normalized
	}
	return nil
}

// HasWallet reports whether the user completed the wallet-link flow.
func (u *User) HasWallet() bool {
	return u.WalletConnected && u.WalletAddress != nil && *u.WalletAddress != ""
}
