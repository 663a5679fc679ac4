package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/librisforge/libris-backend/pkg/enums"
)

// Reservation is one member's place in a book's FIFO wait queue. Position is
// a monotonically increasing sequence used to break reserved_at ties by
// insertion order.
type Reservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BookID        uuid.UUID               `gorm:"column:book_id;type:uuid;not null;index;uniqueIndex:ux_reservations_book_position,priority:1"`
	MemberID      uuid.UUID               `gorm:"column:member_id;type:uuid;not null;index"`
	ReservedAt    time.Time               `gorm:"column:reserved_at;not null"`
	Position      int64                   `gorm:"column:position;not null;uniqueIndex:ux_reservations_book_position,priority:2"`
	Status        enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'waiting'"`
	FulfilledAt   *time.Time              `gorm:"column:fulfilled_at"`
	ClaimDeadline *time.Time              `gorm:"column:claim_deadline"`
	ClaimedAt     *time.Time              `gorm:"column:claimed_at"`
	CancelledAt   *time.Time              `gorm:"column:cancelled_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
