package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

// Transaction is an append-only ledger row. For a given
// (order_id, transaction_type, external_ref) key at most one row reaches
// completed; later writes with the same key are no-ops.
type Transaction struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Type           enums.TransactionType   `gorm:"column:transaction_type;type:transaction_type_enum;not null"`
	Amount         decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Status         enums.TransactionStatus `gorm:"column:status;type:transaction_status_enum;not null;default:'pending'"`
	PaymentMethod  enums.PaymentMethod     `gorm:"column:payment_method;type:payment_method_enum;not null"`
	DriverWalletID *uuid.UUID              `gorm:"column:driver_wallet_id;type:uuid"`
	ReceiptNumber  *string                 `gorm:"column:receipt_number"`
	ExternalRef    *string                 `gorm:"column:external_ref;uniqueIndex:ux_transactions_external_ref"`
	PhoneNumber    *string                 `gorm:"column:phone_number"`
	FailureReason  *string                 `gorm:"column:failure_reason"`
	CompletedAt    *time.Time              `gorm:"column:completed_at"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
