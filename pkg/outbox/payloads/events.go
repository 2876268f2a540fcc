package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

// NewOrderEvent is published when a customer places an order.
type NewOrderEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerName  string              `json:"customer_name"`
	CustomerPhone string              `json:"customer_phone"`
	PaymentType   enums.PaymentType   `json:"payment_type"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	ItemCount     int                 `json:"item_count"`
	HasAlcohol    bool                `json:"has_alcohol"`
}

// OrderUpdatedEvent fires when assignment or other non-status fields change.
type OrderUpdatedEvent struct {
	OrderID  uuid.UUID  `json:"order_id"`
	BranchID *uuid.UUID `json:"branch_id,omitempty"`
	DriverID *uuid.UUID `json:"driver_id,omitempty"`
}

// OrderStatusUpdatedEvent fires on every lifecycle transition.
type OrderStatusUpdatedEvent struct {
	OrderID            uuid.UUID         `json:"order_id"`
	Status             enums.OrderStatus `json:"status"`
	PreviousStatus     enums.OrderStatus `json:"previous_status"`
	DriverID           *uuid.UUID        `json:"driver_id,omitempty"`
	CancellationReason *string           `json:"cancellation_reason,omitempty"`
	ChangedAt          time.Time         `json:"changed_at"`
}

// PaymentConfirmedEvent fires exactly once per order when a payment resolves
// as completed and the ledger has been written.
type PaymentConfirmedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	Amount        decimal.Decimal     `json:"amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ReceiptNumber string              `json:"receipt_number,omitempty"`
	CustomerPhone string              `json:"customer_phone,omitempty"`
	ConfirmedAt   time.Time           `json:"confirmed_at"`
}

// DriverOrderResponseEvent fires when a driver accepts or rejects an assignment.
type DriverOrderResponseEvent struct {
	OrderID  uuid.UUID              `json:"order_id"`
	DriverID uuid.UUID              `json:"driver_id"`
	Response enums.DriverAcceptance `json:"response"`
}
