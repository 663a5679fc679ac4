package fines

import (
	"github.com/shopspring/decimal"

	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/types"
)

// OverdueDays returns the number of whole days asOf falls past due.
// Returns 0 when asOf is on or before the due date.
func OverdueDays(due types.Date, asOf types.Date) int {
	days := asOf.DaysSince(due)
	if days < 0 {
		return 0
	}
	return days
}

// Amount computes the accrued fine for a loan due on the given date,
// evaluated as of asOf, at ratePerDay currency units per overdue day.
func Amount(due types.Date, asOf types.Date, ratePerDay decimal.Decimal) decimal.Decimal {
	days := OverdueDays(due, asOf)
	if days == 0 {
		return decimal.Zero
	}
	return ratePerDay.Mul(decimal.NewFromInt(int64(days)))
}

// AmountForLoan evaluates the fine owed on a loan as of the given date.
// Returned loans accrue up to their returned date; open loans accrue up
// to asOf. The per-day rate is the one captured when the loan was issued.
func AmountForLoan(loan *models.Loan, asOf types.Date) decimal.Decimal {
	if loan == nil {
		return decimal.Zero
	}
	end := asOf
	if loan.ReturnedDate != nil {
		end = *loan.ReturnedDate
	}
	return Amount(loan.DueDate, end, loan.FinePerDay)
}
