package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/librisforge/libris-backend/pkg/enums"
	"github.com/librisforge/libris-backend/pkg/types"
)

// Loan records one checkout transaction for some quantity of copies by one
// member. Loans are never deleted; a single mutation at return closes them.
type Loan struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BookID       uuid.UUID        `gorm:"column:book_id;type:uuid;not null;index"`
	MemberID     uuid.UUID        `gorm:"column:member_id;type:uuid;not null;index"`
	CopiesLent   int              `gorm:"column:copies_lent;not null"`
	IssuedDate   types.Date       `gorm:"column:issued_date;type:date;not null"`
	DueDate      types.Date       `gorm:"column:due_date;type:date;not null"`
	FinePerDay   decimal.Decimal  `gorm:"column:fine_per_day;type:numeric(10,2);not null"`
	ReturnedDate *types.Date      `gorm:"column:returned_date;type:date"`
	Status       enums.LoanStatus `gorm:"column:status;type:text;not null;default:'borrowed'"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOverdue derives the display state from the stored status and the clock.
func (l Loan) IsOverdue(asOf types.Date) bool {
	return l.Status == enums.LoanStatusBorrowed && asOf.After(l.DueDate)
}
