package models

import "time"

// Setting is a keyed row in the settings store. The core reads delivery fee
// amounts and operational flags from here; administration of the rows is a
// separate concern.
type Setting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
