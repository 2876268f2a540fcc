package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
)

// Repository reads the drink catalog and adjusts stock on completion.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindDrinks(ctx context.Context, ids []uuid.UUID) ([]models.Drink, error)
	CountAlcoholicByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	DecrementStock(ctx context.Context, drinkID uuid.UUID, qty int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindDrinks(ctx context.Context, ids []uuid.UUID) ([]models.Drink, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var drinks []models.Drink
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&drinks).Error
	if err != nil {
		return nil, err
	}
	return drinks, nil
}

func (r *repository) CountAlcoholicByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Joins("JOIN drinks ON drinks.id = order_items.drink_id").
		Where("order_items.order_id = ? AND drinks.is_alcoholic", orderID).
		Count(&count).Error
	return count, err
}

func (r *repository) DecrementStock(ctx context.Context, drinkID uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	return r.db.WithContext(ctx).
		Model(&models.Drink{}).
		Where("id = ?", drinkID).
		Update("stock_qty", gorm.Expr("GREATEST(stock_qty - ?, 0)", qty)).Error
}
