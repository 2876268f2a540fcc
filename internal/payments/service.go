package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/internal/ledger"
	"github.com/angelmondragon/drinkrun-backend/internal/orderlock"
	"github.com/angelmondragon/drinkrun-backend/internal/orders"
	"github.com/angelmondragon/drinkrun-backend/internal/wallets"
	"github.com/angelmondragon/drinkrun-backend/pkg/db"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/gateway"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/metrics"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/payloads"
)

// Resolution sources recorded in logs and metrics.
const (
	sourceWebhook = "webhook"
	sourcePoll    = "poll"
	sourceManual  = "manual"
	sourceSweep   = "sweep"
)

// AttemptTracker is the poller surface the service drives: one timer per
// pending attempt, cancelled when the attempt resolves.
type AttemptTracker interface {
	Track(attemptID uuid.UUID)
	Cancel(attemptID uuid.UUID)
}

// Service reconciles push payments: it initiates gateway attempts, consumes
// webhook callbacks, runs the bounded poll fallback, and records cash
// payments. The webhook and the poller race to complete the same attempt;
// the transaction row's resolved status decides the winner and the loser
// performs no writes.
type Service interface {
	InitiatePush(ctx context.Context, input InitiatePushInput) (*models.Transaction, error)
	HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error
	PollOnce(ctx context.Context, attemptID uuid.UUID) (*models.Transaction, error)
	FailTimedOut(ctx context.Context, attemptID uuid.UUID) error
	RecordCashPayment(ctx context.Context, input RecordCashPaymentInput) (*orders.Projection, error)
	SweepTimedOut(ctx context.Context, olderThan time.Duration) (int, error)
}

// InitiatePushInput starts a push-to-phone payment attempt.
type InitiatePushInput struct {
	OrderID     uuid.UUID       `json:"order_id" validate:"required"`
	PhoneNumber string          `json:"phone_number" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

// RecordCashPaymentInput records a cash payment taken on delivery or at the
// counter.
type RecordCashPaymentInput struct {
	OrderID        uuid.UUID       `json:"order_id" validate:"required"`
	AmountReceived decimal.Decimal `json:"amount_received" validate:"required"`
	Actor          orders.Actor    `json:"-"`
}

type service struct {
	repo    Repository
	orders  orders.Service
	ordRepo orders.Repository
	ledger  ledger.Service
	wallets wallets.Repository
	gateway *gateway.Client
	client  *db.Client
	lock    orderlock.Locker
	outbox  *outbox.Service
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
	tracker AttemptTracker
}

// ServiceParams configure the payments service.
type ServiceParams struct {
	Repo      Repository
	Orders    orders.Service
	OrderRepo orders.Repository
	Ledger    ledger.Service
	Wallets   wallets.Repository
	Gateway   *gateway.Client
	Client    *db.Client
	Lock      orderlock.Locker
	Outbox    *outbox.Service
	Logger    *logger.Logger
	Metrics   *metrics.PaymentMetrics
}

// NewService wires the payments service. Attach the poller afterwards with
// Bind.
func NewService(params ServiceParams) (*ServiceImpl, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway client required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("order locker required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ServiceImpl{service{
		repo:    params.Repo,
		orders:  params.Orders,
		ordRepo: params.OrderRepo,
		ledger:  params.Ledger,
		wallets: params.Wallets,
		gateway: params.Gateway,
		client:  params.Client,
		lock:    params.Lock,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
	}}, nil
}

// ServiceImpl is the concrete payments service; exported so the poller can
// be bound after construction.
type ServiceImpl struct {
	service
}

// Bind attaches the attempt tracker. Must be called before InitiatePush.
func (s *ServiceImpl) Bind(tracker AttemptTracker) {
	s.tracker = tracker
}

func (s *ServiceImpl) InitiatePush(ctx context.Context, input InitiatePushInput) (*models.Transaction, error) {
	if strings.TrimSpace(input.PhoneNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var attempt *models.Transaction
	err := s.lock.WithOrderLock(ctx, input.OrderID, func(ctx context.Context) error {
		order, err := s.ordRepo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "terminal orders cannot take payments")
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeValidation, "order is already paid")
		}
		if !input.Amount.Equal(order.TotalAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "amount does not match the order total").
				WithDetails(map[string]any{"order_total": order.TotalAmount})
		}

		// The pending row exists before the gateway is called so a crash
		// mid-call still leaves an attempt for the sweep to resolve.
		reference := uuid.NewString()
		phone := strings.TrimSpace(input.PhoneNumber)
		attempt = &models.Transaction{
			OrderID:       order.ID,
			Type:          enums.TransactionTypePayment,
			Amount:        input.Amount,
			Status:        enums.TransactionStatusPending,
			PaymentMethod: enums.PaymentMethodMobileMoney,
			ExternalRef:   &reference,
			PhoneNumber:   &phone,
		}
		if err := s.repo.Create(ctx, attempt); err != nil {
			return err
		}

		resp, gatewayErr := s.gateway.InitiatePush(ctx, gateway.PushRequest{
			PhoneNumber: phone,
			Amount:      input.Amount,
			Reference:   reference,
			Description: fmt.Sprintf("DrinkRun order %s", order.ID),
		})
		if gatewayErr != nil {
			reason := gatewayErr.Error()
			if err := s.repo.Update(ctx, attempt.ID, map[string]any{
				"status":         enums.TransactionStatusFailed,
				"failure_reason": reason,
			}); err != nil {
				s.logg.Error(ctx, "failed to mark attempt failed after gateway error", err)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "payment gateway rejected the push")
		}

		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Update(ctx, attempt.ID, map[string]any{
				"external_ref": resp.ExternalRef,
			}); err != nil {
				return err
			}
			attempt.ExternalRef = &resp.ExternalRef
			return s.orders.SetPaymentStatusTx(ctx, tx, order.ID, enums.PaymentStatusPending)
		})
	})
	if err != nil {
		return nil, err
	}

	if s.tracker != nil {
		s.tracker.Track(attempt.ID)
	}
	return attempt, nil
}

func (s *ServiceImpl) HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error {
	ref := strings.TrimSpace(payload.ExternalRef)
	if ref == "" {
		s.logg.Warn(ctx, "payment callback without external ref dropped")
		return nil
	}

	if !payload.Status.IsResolved() {
		s.logg.Warn(s.logg.WithField(ctx, "external_ref", ref), "non-terminal payment callback dropped")
		return nil
	}

	attempt, err := s.repo.FindByExternalRef(ctx, ref)
	if err != nil {
		return err
	}
	if attempt == nil {
		// Stale or duplicate external event; expected, not an error.
		s.logg.Warn(s.logg.WithField(ctx, "external_ref", ref), "payment callback for unknown attempt dropped")
		return nil
	}

	_, err = s.resolveAttempt(ctx, attempt.ID, resolution{
		Status:        payload.Status,
		Amount:        payload.Amount,
		ReceiptNumber: payload.ReceiptNumber,
		FailureReason: payload.FailureReason,
		Source:        sourceWebhook,
	})
	return err
}

func (s *ServiceImpl) PollOnce(ctx context.Context, attemptID uuid.UUID) (*models.Transaction, error) {
	attempt, err := s.repo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
	}
	if attempt.Status.IsResolved() {
		if s.tracker != nil {
			s.tracker.Cancel(attempt.ID)
		}
		return attempt, nil
	}
	if attempt.ExternalRef == nil {
		return attempt, nil
	}

	if s.metrics != nil {
		s.metrics.IncPollAttempt()
	}
	result, err := s.gateway.QueryStatus(ctx, *attempt.ExternalRef)
	if err != nil {
		return nil, err
	}
	if !result.Status.IsResolved() {
		return attempt, nil
	}

	return s.resolveAttempt(ctx, attempt.ID, resolution{
		Status:        result.Status,
		Amount:        result.Amount,
		ReceiptNumber: result.ReceiptNumber,
		FailureReason: result.FailureReason,
		Source:        sourcePoll,
	})
}

// FailTimedOut resolves an attempt whose poll budget expired.
func (s *ServiceImpl) FailTimedOut(ctx context.Context, attemptID uuid.UUID) error {
	_, err := s.resolveAttempt(ctx, attemptID, resolution{
		Status:        gateway.AttemptFailed,
		FailureReason: "payment confirmation timed out",
		Source:        sourcePoll,
	})
	return err
}

// resolution is the terminal gateway answer being applied to an attempt.
type resolution struct {
	Status        gateway.AttemptStatus
	Amount        decimal.Decimal
	ReceiptNumber string
	FailureReason string
	Source        string
}

// resolveAttempt applies a terminal status under the order lock. Whichever
// of the webhook and poller gets here first wins; the loser observes the
// already-resolved row and returns without writing.
func (s *ServiceImpl) resolveAttempt(ctx context.Context, attemptID uuid.UUID, res resolution) (*models.Transaction, error) {
	attempt, err := s.repo.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
	}

	var resolved *models.Transaction
	err = s.lock.WithOrderLock(ctx, attempt.OrderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindByID(ctx, attemptID)
			if err != nil {
				return err
			}
			if current.Status.IsResolved() {
				resolved = current
				return nil
			}

			switch res.Status {
			case gateway.AttemptCompleted:
				if err := s.completeAttemptTx(ctx, tx, current, res); err != nil {
					return err
				}
			case gateway.AttemptFailed, gateway.AttemptCancelled:
				updates := map[string]any{
					"status": enums.TransactionStatusFailed,
				}
				if res.Status == gateway.AttemptCancelled {
					updates["status"] = enums.TransactionStatusCancelled
				}
				if res.FailureReason != "" {
					updates["failure_reason"] = res.FailureReason
				}
				if err := repo.Update(ctx, current.ID, updates); err != nil {
					return err
				}
				if err := s.orders.SetPaymentStatusTx(ctx, tx, current.OrderID, enums.PaymentStatusUnpaid); err != nil {
					return err
				}
			default:
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unresolved gateway status %q", res.Status))
			}

			updated, err := repo.FindByID(ctx, attemptID)
			if err != nil {
				return err
			}
			resolved = updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.tracker != nil {
		s.tracker.Cancel(attemptID)
	}
	if s.metrics != nil && resolved != nil {
		s.metrics.IncResolved(res.Source, string(resolved.Status))
	}
	return resolved, nil
}

// completeAttemptTx stamps the attempt completed, marks the order paid, and
// queues the payment-confirmed event. A ledger failure here is
// fatal-and-logged by the caller's transaction rollback; the alert fires
// before the rollback so operators see the inconsistency.
func (s *ServiceImpl) completeAttemptTx(ctx context.Context, tx *gorm.DB, attempt *models.Transaction, res resolution) error {
	order, err := s.ordRepo.WithTx(tx).FindByID(ctx, attempt.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if !res.Amount.IsZero() && !res.Amount.Equal(order.TotalAmount) {
		fields := map[string]any{
			"order_id":     order.ID.String(),
			"order_total":  order.TotalAmount.String(),
			"paid_amount":  res.Amount.String(),
			"external_ref": derefString(attempt.ExternalRef),
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "confirmed payment amount differs from order total")
		if s.metrics != nil {
			s.metrics.IncAmountMismatch()
		}
	}

	now := time.Now()
	updates := map[string]any{
		"status":       enums.TransactionStatusCompleted,
		"completed_at": now,
	}
	if res.ReceiptNumber != "" {
		updates["receipt_number"] = res.ReceiptNumber
	}
	if err := s.repo.WithTx(tx).Update(ctx, attempt.ID, updates); err != nil {
		return err
	}

	// The completed payment row is the merchant credit.
	merchant, err := s.wallets.WithTx(tx).FindMerchant(ctx)
	if err != nil {
		s.logg.Error(ctx, "ledger credit failed after payment completion", err)
		return err
	}
	if err := s.wallets.WithTx(tx).Credit(ctx, merchant.ID, attempt.Amount); err != nil {
		s.logg.Error(ctx, "ledger credit failed after payment completion", err)
		return err
	}

	if _, err := s.orders.ApplyPaymentCompletionTx(ctx, tx, order.ID); err != nil {
		return err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentConfirmed,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   attempt.ID,
		Version:       1,
		Data: payloads.PaymentConfirmedEvent{
			OrderID:       order.ID,
			TransactionID: attempt.ID,
			Amount:        attempt.Amount,
			PaymentMethod: attempt.PaymentMethod,
			ReceiptNumber: res.ReceiptNumber,
			CustomerPhone: order.CustomerPhone,
			ConfirmedAt:   now,
		},
	}
	return s.outbox.EmitIfNotExists(ctx, tx, event)
}

func (s *ServiceImpl) RecordCashPayment(ctx context.Context, input RecordCashPaymentInput) (*orders.Projection, error) {
	if !input.AmountReceived.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount received must be positive")
	}

	var result *orders.Projection
	err := s.lock.WithOrderLock(ctx, input.OrderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.ordRepo.WithTx(tx).FindByID(ctx, input.OrderID)
			if err != nil {
				return err
			}
			if order == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			if order.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeForbidden, "terminal orders cannot take payments")
			}
			if !input.AmountReceived.Equal(order.TotalAmount) {
				return pkgerrors.New(pkgerrors.CodeValidation, "amount received does not match the order total").
					WithDetails(map[string]any{"order_total": order.TotalAmount})
			}

			txn, err := s.ledger.RecordOrderPayment(ctx, tx, ledger.RecordPaymentInput{
				OrderID:       order.ID,
				Amount:        input.AmountReceived,
				PaymentMethod: enums.PaymentMethodCash,
			})
			if err != nil {
				return err
			}

			projection, err := s.orders.ApplyPaymentCompletionTx(ctx, tx, order.ID)
			if err != nil {
				return err
			}

			if txn != nil {
				event := outbox.DomainEvent{
					EventType:     enums.EventPaymentConfirmed,
					AggregateType: enums.AggregateTransaction,
					AggregateID:   txn.ID,
					Version:       1,
					Data: payloads.PaymentConfirmedEvent{
						OrderID:       order.ID,
						TransactionID: txn.ID,
						Amount:        txn.Amount,
						PaymentMethod: txn.PaymentMethod,
						CustomerPhone: order.CustomerPhone,
						ConfirmedAt:   time.Now(),
					},
				}
				if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
					return err
				}
			}

			result = projection
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncResolved(sourceManual, string(enums.TransactionStatusCompleted))
	}
	return result, nil
}

// SweepTimedOut fails pending attempts older than the poll budget. It backs
// up the in-process poller when the instance that owned a timer died.
func (s *ServiceImpl) SweepTimedOut(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	attempts, err := s.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, attempt := range attempts {
		if _, err := s.resolveAttempt(ctx, attempt.ID, resolution{
			Status:        gateway.AttemptFailed,
			FailureReason: "payment confirmation timed out",
			Source:        sourceSweep,
		}); err != nil {
			s.logg.Error(s.logg.WithTransactionID(ctx, attempt.ID.String()), "timeout sweep failed for attempt", err)
			continue
		}
		swept++
	}
	return swept, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
