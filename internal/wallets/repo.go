package wallets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
)

// Repository manages persistence for wallet rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindMerchant(ctx context.Context) (*models.Wallet, error)
	FindByDriverID(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error)
	List(ctx context.Context) ([]models.Wallet, error)
	Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
	SetBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error
	SumCompleted(ctx context.Context, wallet models.Wallet) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallets repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindMerchant(ctx context.Context) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("owner = ?", models.WalletOwnerMerchant).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByDriverID(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) List(ctx context.Context) ([]models.Wallet, error) {
	var wallets []models.Wallet
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *repository) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	if walletID == uuid.Nil {
		return errors.New("wallet id is required")
	}
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

func (r *repository) SetBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error {
	if walletID == uuid.Nil {
		return errors.New("wallet id is required")
	}
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", balance).Error
}

// SumCompleted aggregates the completed transactions routed to the wallet,
// signed by transaction category. The merchant wallet owns every completed
// row without a driver_wallet_id.
func (r *repository) SumCompleted(ctx context.Context, wallet models.Wallet) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("status = ?", enums.TransactionStatusCompleted)
	if wallet.Owner == models.WalletOwnerDriver {
		query = query.Where("driver_wallet_id = ?", wallet.ID)
	} else {
		query = query.Where("driver_wallet_id IS NULL")
	}

	var rows []models.Transaction
	if err := query.Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, row := range rows {
		if row.Type.Category() == enums.TransactionCategoryDebit {
			total = total.Sub(row.Amount)
			continue
		}
		total = total.Add(row.Amount)
	}
	return total, nil
}
