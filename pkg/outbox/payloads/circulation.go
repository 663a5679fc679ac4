package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/librisforge/libris-backend/pkg/types"
)

// LoanCreatedEvent is emitted when a checkout succeeds.
type LoanCreatedEvent struct {
	LoanID     uuid.UUID  `json:"loan_id"`
	BookID     uuid.UUID  `json:"book_id"`
	MemberID   uuid.UUID  `json:"member_id"`
	CopiesLent int        `json:"copies_lent"`
	IssuedDate types.Date `json:"issued_date"`
	DueDate    types.Date `json:"due_date"`
}

// LoanReturnedEvent is emitted when a loan closes.
type LoanReturnedEvent struct {
	LoanID       uuid.UUID       `json:"loan_id"`
	BookID       uuid.UUID       `json:"book_id"`
	MemberID     uuid.UUID       `json:"member_id"`
	CopiesLent   int             `json:"copies_lent"`
	ReturnedDate types.Date      `json:"returned_date"`
	FineAmount   decimal.Decimal `json:"fine_amount"`
	OverdueDays  int             `json:"overdue_days"`
}

// CopyAvailableEvent names the waiting member a freed copy was earmarked for.
type CopyAvailableEvent struct {
	BookID        uuid.UUID `json:"book_id"`
	MemberID      uuid.UUID `json:"member_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

// LoanOverdueEvent feeds external reminder delivery.
type LoanOverdueEvent struct {
	LoanID      uuid.UUID  `json:"loan_id"`
	BookID      uuid.UUID  `json:"book_id"`
	MemberID    uuid.UUID  `json:"member_id"`
	DueDate     types.Date `json:"due_date"`
	OverdueDays int        `json:"overdue_days"`
}

// ReservationExpiredEvent records a fulfilled reservation that was never claimed.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	BookID        uuid.UUID `json:"book_id"`
	MemberID      uuid.UUID `json:"member_id"`
}
