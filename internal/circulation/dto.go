package circulation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/librisforge/libris-backend/internal/fines"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/enums"
	"github.com/librisforge/libris-backend/pkg/types"
)

// CheckoutInput captures a checkout request. A zero IssuedDate means today;
// a zero DueDate means issued date plus the configured loan period.
type CheckoutInput struct {
	BookID     uuid.UUID
	MemberID   uuid.UUID
	Copies     int
	IssuedDate types.Date
	DueDate    types.Date
}

// ReturnInput captures a return request. A zero ReturnedDate means today.
type ReturnInput struct {
	LoanID       uuid.UUID
	ReturnedDate types.Date
}

// ReturnResult reports the closed loan, its fine, and any reservations
// the freed copies were handed to.
type ReturnResult struct {
	Loan                  *models.Loan
	FineAmount            decimal.Decimal
	OverdueDays           int
	FulfilledReservations []models.Reservation
}

// FineResult is a point-in-time fine evaluation for one loan.
type FineResult struct {
	LoanID      uuid.UUID        `json:"loan_id"`
	Status      enums.LoanStatus `json:"status"`
	IsOverdue   bool             `json:"is_overdue"`
	OverdueDays int              `json:"overdue_days"`
	FinePerDay  decimal.Decimal  `json:"fine_per_day"`
	FineAmount  decimal.Decimal  `json:"fine_amount"`
	AsOf        types.Date       `json:"as_of"`
}

// LoanView is a loan row augmented with derived circulation state.
type LoanView struct {
	LoanID       uuid.UUID        `json:"loan_id"`
	BookID       uuid.UUID        `json:"book_id"`
	MemberID     uuid.UUID        `json:"member_id"`
	CopiesLent   int              `json:"copies_lent"`
	IssuedDate   types.Date       `json:"issued_date"`
	DueDate      types.Date       `json:"due_date"`
	ReturnedDate *types.Date      `json:"returned_date,omitempty"`
	Status       enums.LoanStatus `json:"status"`
	IsOverdue    bool             `json:"is_overdue"`
	OverdueDays  int              `json:"overdue_days"`
	FineAmount   decimal.Decimal  `json:"fine_amount"`
}

// MemberFinesSummary totals a member's accrued fines, listing only the
// loans that carry one.
type MemberFinesSummary struct {
	MemberID    uuid.UUID       `json:"member_id"`
	AsOf        types.Date      `json:"as_of"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Loans       []LoanView      `json:"loans,omitempty"`
}

func buildLoanView(loan *models.Loan, asOf types.Date) LoanView {
	view := LoanView{
		LoanID:       loan.ID,
		BookID:       loan.BookID,
		MemberID:     loan.MemberID,
		CopiesLent:   loan.CopiesLent,
		IssuedDate:   loan.IssuedDate,
		DueDate:      loan.DueDate,
		ReturnedDate: loan.ReturnedDate,
		Status:       loan.Status,
		IsOverdue:    loan.IsOverdue(asOf),
		FineAmount:   fines.AmountForLoan(loan, asOf),
	}
	end := asOf
	if loan.ReturnedDate != nil {
		end = *loan.ReturnedDate
	}
	view.OverdueDays = fines.OverdueDays(loan.DueDate, end)
	return view
}

func buildFineResult(loan *models.Loan, asOf types.Date) *FineResult {
	end := asOf
	if loan.ReturnedDate != nil {
		end = *loan.ReturnedDate
	}
	return &FineResult{
		LoanID:      loan.ID,
		Status:      loan.Status,
		IsOverdue:   loan.IsOverdue(asOf),
		OverdueDays: fines.OverdueDays(loan.DueDate, end),
		FinePerDay:  loan.FinePerDay,
		FineAmount:  fines.AmountForLoan(loan, asOf),
		AsOf:        asOf,
	}
}
