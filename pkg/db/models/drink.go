package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Drink is the read-only catalog entity the core consults for price
// snapshots, the alcohol delivery-fee check, and stock decrement on
// completion.
type Drink struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	IsAlcoholic bool            `gorm:"column:is_alcoholic;not null;default:false"`
	StockQty    int             `gorm:"column:stock_qty;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
