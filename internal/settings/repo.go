package settings

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
)

// Repository reads the keyed settings store.
type Repository interface {
	FindAll(ctx context.Context) ([]models.Setting, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindAll(ctx context.Context) ([]models.Setting, error) {
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
