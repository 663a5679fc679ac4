package models

import (
	"time"

	"github.com/google/uuid"
)

// BookInventory tracks the copy counts for a single book title. The row is
// the single source of truth for availability; both counters are mutated
// only through guarded updates inside a transaction.
type BookInventory struct {
	BookID          uuid.UUID `gorm:"column:book_id;type:uuid;primaryKey"`
	TotalCopies     int       `gorm:"column:total_copies;not null;default:0"`
	AvailableCopies int       `gorm:"column:available_copies;not null;default:0"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the legacy table naming.
func (BookInventory) TableName() string {
	return "book_inventory"
}
