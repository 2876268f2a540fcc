package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

// Actor identifies who is driving a mutation. The role gates admin-only
// guards; the system role is reserved for payment reconciliation.
type Actor struct {
	Role     string
	UserID   *uuid.UUID
	DriverID *uuid.UUID
}

// Actor roles.
const (
	RoleAdmin  = "admin"
	RoleSystem = "system"
	RoleDriver = "driver"
)

// CreateOrderItemInput is one requested line on a new order.
type CreateOrderItemInput struct {
	DrinkID  uuid.UUID `json:"drink_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderInput captures the order-intake payload.
type CreateOrderInput struct {
	CustomerName    string                 `json:"customer_name" validate:"required"`
	CustomerPhone   string                 `json:"customer_phone" validate:"required"`
	DeliveryAddress *string                `json:"delivery_address,omitempty"`
	PaymentType     enums.PaymentType      `json:"payment_type" validate:"required"`
	PaymentMethod   enums.PaymentMethod    `json:"payment_method" validate:"required"`
	TipAmount       decimal.Decimal        `json:"tip_amount"`
	Items           []CreateOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

// TransitionInput drives one state-machine step.
type TransitionInput struct {
	OrderID        uuid.UUID
	Target         enums.OrderStatus
	Actor          Actor
	Reason         *string
	ExpectedStatus *enums.OrderStatus
}

// ItemProjection is the line-item view returned to observers.
type ItemProjection struct {
	ID        uuid.UUID       `json:"id"`
	DrinkID   uuid.UUID       `json:"drink_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Projection is the authoritative order view every mutating operation
// returns; observers patch their local state from it.
type Projection struct {
	ID                 uuid.UUID               `json:"id"`
	Status             enums.OrderStatus       `json:"status"`
	PaymentStatus      enums.PaymentStatus     `json:"payment_status"`
	PaymentType        enums.PaymentType       `json:"payment_type"`
	BranchID           *uuid.UUID              `json:"branch_id,omitempty"`
	DriverID           *uuid.UUID              `json:"driver_id,omitempty"`
	DriverAccepted     *enums.DriverAcceptance `json:"driver_accepted,omitempty"`
	TotalAmount        decimal.Decimal         `json:"total_amount"`
	TipAmount          decimal.Decimal         `json:"tip_amount"`
	CancellationReason *string                 `json:"cancellation_reason,omitempty"`
	CustomerName       string                  `json:"customer_name"`
	CustomerPhone      string                  `json:"customer_phone"`
	DeliveryAddress    *string                 `json:"delivery_address,omitempty"`
	Items              []ItemProjection        `json:"items"`
	ConfirmedAt        *time.Time              `json:"confirmed_at,omitempty"`
	DeliveredAt        *time.Time              `json:"delivered_at,omitempty"`
	CompletedAt        *time.Time              `json:"completed_at,omitempty"`
	CancelledAt        *time.Time              `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// ListFilters describe the inputs supported by the orders list.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	DriverID      *uuid.UUID
	DateFrom      *time.Time
	DateTo        *time.Time
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []Projection `json:"orders"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ProjectOrder maps a model row to the externally visible projection.
func ProjectOrder(order models.Order) Projection {
	items := make([]ItemProjection, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemProjection{
			ID:        item.ID,
			DrinkID:   item.DrinkID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return Projection{
		ID:                 order.ID,
		Status:             order.Status,
		PaymentStatus:      order.PaymentStatus,
		PaymentType:        order.PaymentType,
		BranchID:           order.BranchID,
		DriverID:           order.DriverID,
		DriverAccepted:     order.DriverAccepted,
		TotalAmount:        order.TotalAmount,
		TipAmount:          order.TipAmount,
		CancellationReason: order.CancellationReason,
		CustomerName:       order.CustomerName,
		CustomerPhone:      order.CustomerPhone,
		DeliveryAddress:    order.DeliveryAddress,
		Items:              items,
		ConfirmedAt:        order.ConfirmedAt,
		DeliveredAt:        order.DeliveredAt,
		CompletedAt:        order.CompletedAt,
		CancelledAt:        order.CancelledAt,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}
