package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

// Repository manages persistence for the append-only transactions table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Exists(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType, driverWalletID *uuid.UUID) (bool, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// Exists checks the ledger idempotency key: one completed row per
// (order_id, transaction_type, driver_wallet_id).
func (r *repository) Exists(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType, driverWalletID *uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("order_id = ? AND transaction_type = ? AND status = ?", orderID, txnType, enums.TransactionStatusCompleted)
	if driverWalletID == nil {
		query = query.Where("driver_wallet_id IS NULL")
	} else {
		query = query.Where("driver_wallet_id = ?", *driverWalletID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
