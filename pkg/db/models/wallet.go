package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletOwner distinguishes the merchant wallet from per-driver wallets.
type WalletOwner string

const (
	WalletOwnerMerchant WalletOwner = "merchant"
	WalletOwnerDriver   WalletOwner = "driver"
)

// Wallet holds a cached balance derived from completed transactions. It is
// credited only by ledger commits and recomputable from scratch.
type Wallet struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Owner     WalletOwner     `gorm:"column:owner;type:wallet_owner_enum;not null"`
	DriverID  *uuid.UUID      `gorm:"column:driver_id;type:uuid;uniqueIndex:ux_wallets_driver_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
