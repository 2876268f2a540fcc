package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/internal/catalog"
	"github.com/angelmondragon/drinkrun-backend/internal/ledger"
	"github.com/angelmondragon/drinkrun-backend/internal/orderlock"
	"github.com/angelmondragon/drinkrun-backend/pkg/db"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/drinkrun-backend/pkg/pagination"
)

const maxCancellationReasonLen = 100

// Service owns the order lifecycle: creation, the status state machine, the
// admin payment-status path, and driver responses. Every mutation holds the
// per-order lock for its read-modify-write.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*Projection, error)
	Get(ctx context.Context, orderID uuid.UUID) (*Projection, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	Transition(ctx context.Context, input TransitionInput) (*Projection, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, actor Actor) (*Projection, error)
	RecordDriverResponse(ctx context.Context, orderID, driverID uuid.UUID, response enums.DriverAcceptance) (*Projection, error)

	// ApplyPaymentCompletionTx marks the order paid and auto-confirms pending
	// pay_now orders. The caller must already hold the order lock and an open
	// transaction; payment reconciliation is the only expected caller.
	ApplyPaymentCompletionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*Projection, error)

	// SetPaymentStatusTx writes payment_status inside the caller's lock and
	// transaction without ledger side effects.
	SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error
}

type service struct {
	repo    Repository
	client  *db.Client
	lock    orderlock.Locker
	catalog catalog.Service
	ledger  ledger.Service
	outbox  *outbox.Service
	logg    *logger.Logger
}

// ServiceParams configure the orders service.
type ServiceParams struct {
	Repo    Repository
	Client  *db.Client
	Lock    orderlock.Locker
	Catalog catalog.Service
	Ledger  ledger.Service
	Outbox  *outbox.Service
	Logger  *logger.Logger
}

// NewService wires the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("order locker required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		client:  params.Client,
		lock:    params.Lock,
		catalog: params.Catalog,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*Projection, error) {
	if strings.TrimSpace(input.CustomerName) == "" || strings.TrimSpace(input.CustomerPhone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and phone are required")
	}
	if !input.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", input.PaymentType))
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if input.TipAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip amount cannot be negative")
	}

	drinkIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		drinkIDs = append(drinkIDs, item.DrinkID)
	}

	drinks, err := s.catalog.SnapshotDrinks(ctx, drinkIDs)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	hasAlcohol := false
	for _, item := range input.Items {
		drink := drinks[item.DrinkID]
		total = total.Add(drink.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		if drink.IsAlcoholic {
			hasAlcohol = true
		}
	}

	var created *models.Order
	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order := &models.Order{
			Status:          enums.OrderStatusPending,
			PaymentStatus:   enums.PaymentStatusUnpaid,
			PaymentType:     input.PaymentType,
			TotalAmount:     total,
			TipAmount:       input.TipAmount,
			CustomerName:    input.CustomerName,
			CustomerPhone:   input.CustomerPhone,
			DeliveryAddress: input.DeliveryAddress,
		}
		if _, err := repo.Create(ctx, order); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(input.Items))
		for _, item := range input.Items {
			items = append(items, models.OrderItem{
				OrderID:   order.ID,
				DrinkID:   item.DrinkID,
				Quantity:  item.Quantity,
				UnitPrice: drinks[item.DrinkID].Price,
			})
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return err
		}
		order.Items = items

		event := outbox.DomainEvent{
			EventType:     enums.EventNewOrder,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.NewOrderEvent{
				OrderID:       order.ID,
				CustomerName:  order.CustomerName,
				CustomerPhone: order.CustomerPhone,
				PaymentType:   order.PaymentType,
				PaymentMethod: input.PaymentMethod,
				TotalAmount:   order.TotalAmount,
				ItemCount:     len(items),
				HasAlcohol:    hasAlcohol,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	projection := ProjectOrder(*created)
	return &projection, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*Projection, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	projection := ProjectOrder(*order)
	return &projection, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return s.repo.List(ctx, params, filters)
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*Projection, error) {
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", input.Target))
	}

	var result *Projection
	err := s.lock.WithOrderLock(ctx, input.OrderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			projection, err := s.transitionTx(ctx, tx, input)
			if err != nil {
				return err
			}
			result = projection
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) transitionTx(ctx context.Context, tx *gorm.DB, input TransitionInput) (*Projection, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if input.ExpectedStatus != nil && *input.ExpectedStatus != order.Status {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed since it was read").
			WithDetails(map[string]any{"current": order.Status, "expected": *input.ExpectedStatus})
	}

	previous := order.Status
	if !order.Status.CanTransitionTo(input.Target) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Target)).
			WithDetails(map[string]any{"from": order.Status, "to": input.Target})
	}

	updates := map[string]any{"status": input.Target}
	now := time.Now()

	switch input.Target {
	case enums.OrderStatusCancelled:
		reason, err := validateCancellationReason(input.Reason)
		if err != nil {
			return nil, err
		}
		updates["cancellation_reason"] = reason
		updates["cancelled_at"] = now

	case enums.OrderStatusConfirmed:
		// pay_on_delivery orders only confirm manually; pay_now orders
		// confirm automatically via payment reconciliation or by admin
		// override.
		if order.PaymentType == enums.PaymentTypePayOnDelivery && input.Actor.Role != RoleAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "pay-on-delivery orders require manual confirmation")
		}
		updates["confirmed_at"] = now

	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now

	case enums.OrderStatusCompleted:
		if order.PaymentStatus != enums.PaymentStatusPaid {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot complete before payment is recorded").
				WithDetails(map[string]any{"from": order.Status, "to": input.Target})
		}
		if err := s.runCompletionPass(ctx, tx, order); err != nil {
			return nil, err
		}
		updates["completed_at"] = now
	}

	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(input.Actor),
		Version:       1,
		Data: payloads.OrderStatusUpdatedEvent{
			OrderID:            order.ID,
			Status:             input.Target,
			PreviousStatus:     previous,
			DriverID:           order.DriverID,
			CancellationReason: input.Reason,
			ChangedAt:          now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	projection := ProjectOrder(*updated)
	return &projection, nil
}

// runCompletionPass performs the wallet-credit side effects of entering
// completed: delivery-fee split, tip credit, and inventory decrement. The
// ledger existence check makes the pass run at most once even when completion
// is retried.
func (s *service) runCompletionPass(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	creditDone, err := s.ledger.HasTransaction(ctx, order.ID, enums.TransactionTypeDeliveryPay, nil)
	if err != nil {
		return err
	}
	if creditDone {
		return nil
	}

	hasAlcohol, err := s.catalog.HasAlcohol(ctx, order.ID)
	if err != nil {
		return err
	}

	if _, err := s.ledger.SplitDeliveryFee(ctx, tx, ledger.SplitDeliveryFeeInput{
		OrderID:    order.ID,
		DriverID:   order.DriverID,
		HasAlcohol: hasAlcohol,
	}); err != nil {
		return err
	}

	if order.TipAmount.IsPositive() && order.DriverID != nil {
		if _, err := s.ledger.CreditTip(ctx, tx, order.ID, order.TipAmount, *order.DriverID); err != nil {
			return err
		}
	}

	return s.catalog.DecrementStockTx(ctx, tx, order.Items)
}

func (s *service) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, actor Actor) (*Projection, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", status))
	}

	var result *Projection
	err := s.lock.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.FindByID(ctx, orderID)
			if err != nil {
				return err
			}
			if order == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			if order.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeForbidden, "payment status of a terminal order cannot change")
			}

			hasPayment, err := s.ledger.HasTransaction(ctx, order.ID, enums.TransactionTypePayment, nil)
			if err != nil {
				return err
			}

			switch status {
			case enums.PaymentStatusPaid:
				// Marking paid without a ledger row records the payment
				// synchronously (admin "mark payment received" for cash).
				if !hasPayment {
					if _, err := s.ledger.RecordOrderPayment(ctx, tx, ledger.RecordPaymentInput{
						OrderID:       order.ID,
						Amount:        order.TotalAmount,
						PaymentMethod: enums.PaymentMethodCash,
					}); err != nil {
						return err
					}
				}
			default:
				if hasPayment {
					return pkgerrors.New(pkgerrors.CodeValidation, "a completed payment already exists for this order")
				}
			}

			if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": status}); err != nil {
				return err
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventOrderUpdated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(actor),
				Version:       1,
				Data: payloads.OrderUpdatedEvent{
					OrderID:  order.ID,
					BranchID: order.BranchID,
					DriverID: order.DriverID,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}

			updated, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			projection := ProjectOrder(*updated)
			result = &projection
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RecordDriverResponse(ctx context.Context, orderID, driverID uuid.UUID, response enums.DriverAcceptance) (*Projection, error) {
	if !response.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid driver response %q", response))
	}

	var result *Projection
	err := s.lock.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.FindByID(ctx, orderID)
			if err != nil {
				return err
			}
			if order == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			if order.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeForbidden, "terminal orders do not accept driver responses")
			}
			if order.DriverID == nil || *order.DriverID != driverID {
				return pkgerrors.New(pkgerrors.CodeValidation, "driver is not assigned to this order")
			}

			if err := repo.Update(ctx, order.ID, map[string]any{"driver_accepted": response}); err != nil {
				return err
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventDriverOrderResponse,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{Role: RoleDriver, DriverID: &driverID},
				Version:       1,
				Data: payloads.DriverOrderResponseEvent{
					OrderID:  order.ID,
					DriverID: driverID,
					Response: response,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}

			updated, err := repo.FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			projection := ProjectOrder(*updated)
			result = &projection
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ApplyPaymentCompletionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*Projection, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if order.PaymentStatus != enums.PaymentStatusPaid {
		if err := repo.Update(ctx, order.ID, map[string]any{"payment_status": enums.PaymentStatusPaid}); err != nil {
			return nil, err
		}
	}

	if order.PaymentType == enums.PaymentTypePayNow && order.Status == enums.OrderStatusPending {
		return s.transitionTx(ctx, tx, TransitionInput{
			OrderID: order.ID,
			Target:  enums.OrderStatusConfirmed,
			Actor:   Actor{Role: RoleSystem},
		})
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	projection := ProjectOrder(*updated)
	return &projection, nil
}

func (s *service) SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", status))
	}
	return s.repo.WithTx(tx).Update(ctx, orderID, map[string]any{"payment_status": status})
}

func validateCancellationReason(reason *string) (string, error) {
	if reason == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason is required")
	}
	if len(trimmed) > maxCancellationReasonLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("cancellation reason must be at most %d characters", maxCancellationReasonLen))
	}
	return trimmed, nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.Role == "" && actor.UserID == nil && actor.DriverID == nil {
		return nil
	}
	return &outbox.ActorRef{
		Role:     actor.Role,
		UserID:   actor.UserID,
		DriverID: actor.DriverID,
	}
}
