package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/internal/settings"
	"github.com/angelmondragon/drinkrun-backend/internal/wallets"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

// Service records the split financial transactions for an order. All writes
// are idempotent on (order_id, transaction_type, driver_wallet_id) so the
// completion pass can be triggered more than once without duplicating rows.
type Service interface {
	RecordOrderPayment(ctx context.Context, tx *gorm.DB, input RecordPaymentInput) (*models.Transaction, error)
	SplitDeliveryFee(ctx context.Context, tx *gorm.DB, input SplitDeliveryFeeInput) (*DeliveryFeeSplit, error)
	CreditTip(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, driverID uuid.UUID) (*models.Transaction, error)
	HasTransaction(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType, driverWalletID *uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
}

// RecordPaymentInput captures the immutable data an order-payment row requires.
type RecordPaymentInput struct {
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	PaymentMethod enums.PaymentMethod
	ExternalRef   *string
	ReceiptNumber *string
	PhoneNumber   *string
}

// SplitDeliveryFeeInput drives the two-row delivery fee split.
type SplitDeliveryFeeInput struct {
	OrderID    uuid.UUID
	DriverID   *uuid.UUID
	HasAlcohol bool
}

// DeliveryFeeSplit is the pair of rows the split produces. Merchant and
// Driver always sum to Fee.
type DeliveryFeeSplit struct {
	Fee      decimal.Decimal
	Merchant *models.Transaction
	Driver   *models.Transaction
}

type service struct {
	repo     Repository
	wallets  wallets.Repository
	settings settings.Service
	logg     *logger.Logger
}

// ServiceParams configure the ledger service.
type ServiceParams struct {
	Repo     Repository
	Wallets  wallets.Repository
	Settings settings.Service
	Logger   *logger.Logger
}

// NewService wires a ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		wallets:  params.Wallets,
		settings: params.Settings,
		logg:     params.Logger,
	}, nil
}

func (s *service) RecordOrderPayment(ctx context.Context, tx *gorm.DB, input RecordPaymentInput) (*models.Transaction, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	repo := s.repo.WithTx(tx)
	exists, err := repo.Exists(ctx, input.OrderID, enums.TransactionTypePayment, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		s.logg.Info(s.logg.WithOrderID(ctx, input.OrderID.String()), "payment row already recorded; skipping")
		return nil, nil
	}

	now := time.Now()
	txn := &models.Transaction{
		OrderID:       input.OrderID,
		Type:          enums.TransactionTypePayment,
		Amount:        input.Amount,
		Status:        enums.TransactionStatusCompleted,
		PaymentMethod: input.PaymentMethod,
		ExternalRef:   input.ExternalRef,
		ReceiptNumber: input.ReceiptNumber,
		PhoneNumber:   input.PhoneNumber,
		CompletedAt:   &now,
	}
	if err := repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.creditMerchant(ctx, tx, input.Amount); err != nil {
		return nil, err
	}
	return txn, nil
}

// SplitDeliveryFee writes the merchant-side and driver-side delivery fee rows.
// The driver share is the configured per-delivery pay when the flag is on and
// a driver is assigned; the merchant side is the remainder so the two rows
// always sum to the configured fee.
func (s *service) SplitDeliveryFee(ctx context.Context, tx *gorm.DB, input SplitDeliveryFeeInput) (*DeliveryFeeSplit, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	values, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	fee := values.DeliveryFeeFor(input.HasAlcohol)
	if !fee.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "configured delivery fee must be positive")
	}

	driverShare := decimal.Zero
	var driverWalletID *uuid.UUID
	if values.DriverPayPerDelivery && input.DriverID != nil {
		wallet, err := s.wallets.WithTx(tx).FindByDriverID(ctx, *input.DriverID)
		if err != nil {
			return nil, err
		}
		driverWalletID = &wallet.ID
		driverShare = values.DriverDeliveryPay
		if driverShare.GreaterThan(fee) {
			driverShare = fee
		}
	}
	merchantShare := fee.Sub(driverShare)

	repo := s.repo.WithTx(tx)
	split := &DeliveryFeeSplit{Fee: fee}
	now := time.Now()

	exists, err := repo.Exists(ctx, input.OrderID, enums.TransactionTypeDeliveryPay, nil)
	if err != nil {
		return nil, err
	}
	if !exists {
		merchant := &models.Transaction{
			OrderID:       input.OrderID,
			Type:          enums.TransactionTypeDeliveryPay,
			Amount:        merchantShare,
			Status:        enums.TransactionStatusCompleted,
			PaymentMethod: enums.PaymentMethodPOS,
			CompletedAt:   &now,
		}
		if err := repo.Create(ctx, merchant); err != nil {
			return nil, err
		}
		if err := s.creditMerchant(ctx, tx, merchantShare); err != nil {
			return nil, err
		}
		split.Merchant = merchant
	}

	if driverWalletID != nil {
		exists, err := repo.Exists(ctx, input.OrderID, enums.TransactionTypeDeliveryPay, driverWalletID)
		if err != nil {
			return nil, err
		}
		if !exists {
			driver := &models.Transaction{
				OrderID:        input.OrderID,
				Type:           enums.TransactionTypeDeliveryPay,
				Amount:         driverShare,
				Status:         enums.TransactionStatusCompleted,
				PaymentMethod:  enums.PaymentMethodPOS,
				DriverWalletID: driverWalletID,
				CompletedAt:    &now,
			}
			if err := repo.Create(ctx, driver); err != nil {
				return nil, err
			}
			if err := s.wallets.WithTx(tx).Credit(ctx, *driverWalletID, driverShare); err != nil {
				return nil, err
			}
			split.Driver = driver
		}
	}

	return split, nil
}

// CreditTip routes a tip to the driver wallet only. Tips never touch the
// merchant wallet and are excluded from revenue aggregates.
func (s *service) CreditTip(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, driverID uuid.UUID) (*models.Transaction, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip amount must be positive")
	}

	wallet, err := s.wallets.WithTx(tx).FindByDriverID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	exists, err := repo.Exists(ctx, orderID, enums.TransactionTypeTip, &wallet.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	now := time.Now()
	txn := &models.Transaction{
		OrderID:        orderID,
		Type:           enums.TransactionTypeTip,
		Amount:         amount,
		Status:         enums.TransactionStatusCompleted,
		PaymentMethod:  enums.PaymentMethodMobileMoney,
		DriverWalletID: &wallet.ID,
		CompletedAt:    &now,
	}
	if err := repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.wallets.WithTx(tx).Credit(ctx, wallet.ID, amount); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) HasTransaction(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType, driverWalletID *uuid.UUID) (bool, error) {
	if orderID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !txnType.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", txnType))
	}
	return s.repo.Exists(ctx, orderID, txnType, driverWalletID)
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	return s.repo.ListByOrderID(ctx, orderID)
}

func (s *service) creditMerchant(ctx context.Context, tx *gorm.DB, amount decimal.Decimal) error {
	wallet, err := s.wallets.WithTx(tx).FindMerchant(ctx)
	if err != nil {
		return err
	}
	return s.wallets.WithTx(tx).Credit(ctx, wallet.ID, amount)
}
