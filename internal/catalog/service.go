package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
)

// Service exposes the read-only catalog lookups the order engine needs.
type Service interface {
	SnapshotDrinks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Drink, error)
	HasAlcohol(ctx context.Context, orderID uuid.UUID) (bool, error)
	DecrementStockTx(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

// SnapshotDrinks returns the current catalog rows for the requested drinks,
// erroring if any are missing.
func (s *service) SnapshotDrinks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Drink, error) {
	drinks, err := s.repo.FindDrinks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Drink, len(drinks))
	for _, drink := range drinks {
		byID[drink.ID] = drink
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown drink %s", id))
		}
	}
	return byID, nil
}

func (s *service) HasAlcohol(ctx context.Context, orderID uuid.UUID) (bool, error) {
	count, err := s.repo.CountAlcoholicByOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DecrementStockTx lowers stock for each order item inside the caller's
// transaction. Runs once per order as part of the completion pass.
func (s *service) DecrementStockTx(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	repo := s.repo.WithTx(tx)
	for _, item := range items {
		if err := repo.DecrementStock(ctx, item.DrinkID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}
