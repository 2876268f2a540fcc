package models

import (
	"time"

	"github.com/google/uuid"
)

// Driver is a reference entity owned by admin CRUD; the assignment engine
// only reads it.
type Driver struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Phone     string    `gorm:"column:phone;not null"`
	Address   string    `gorm:"column:address"`
	Latitude  float64   `gorm:"column:latitude;not null"`
	Longitude float64   `gorm:"column:longitude;not null"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	WalletID  uuid.UUID `gorm:"column:wallet_id;type:uuid;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
