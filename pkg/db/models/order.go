package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

// Order is the aggregate root of the delivery pipeline. Orders are never
// deleted; completed and cancelled are soft-terminal states.
type Order struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status             enums.OrderStatus       `gorm:"column:status;type:order_status_enum;not null;default:'pending'"`
	PaymentStatus      enums.PaymentStatus     `gorm:"column:payment_status;type:payment_status_enum;not null;default:'unpaid'"`
	PaymentType        enums.PaymentType       `gorm:"column:payment_type;type:payment_type_enum;not null;default:'pay_on_delivery'"`
	BranchID           *uuid.UUID              `gorm:"column:branch_id;type:uuid"`
	DriverID           *uuid.UUID              `gorm:"column:driver_id;type:uuid"`
	DriverAccepted     *enums.DriverAcceptance `gorm:"column:driver_accepted;type:driver_acceptance_enum"`
	TotalAmount        decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null"`
	TipAmount          decimal.Decimal         `gorm:"column:tip_amount;type:numeric(12,2);not null;default:0"`
	CancellationReason *string                 `gorm:"column:cancellation_reason"`
	CustomerName       string                  `gorm:"column:customer_name;not null"`
	CustomerPhone      string                  `gorm:"column:customer_phone;not null"`
	DeliveryAddress    *string                 `gorm:"column:delivery_address"`
	Items              []OrderItem             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ConfirmedAt        *time.Time              `gorm:"column:confirmed_at"`
	DeliveredAt        *time.Time              `gorm:"column:delivered_at"`
	CompletedAt        *time.Time              `gorm:"column:completed_at"`
	CancelledAt        *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
