package fines_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/librisforge/libris-backend/internal/fines"
	"github.com/librisforge/libris-backend/pkg/db/models"
	"github.com/librisforge/libris-backend/pkg/types"
)

func TestOverdueDays(t *testing.T) {
	due := types.NewDate(2024, 1, 8)

	require.Equal(t, 0, fines.OverdueDays(due, types.NewDate(2024, 1, 1)))
	require.Equal(t, 0, fines.OverdueDays(due, due))
	require.Equal(t, 1, fines.OverdueDays(due, types.NewDate(2024, 1, 9)))
	require.Equal(t, 2, fines.OverdueDays(due, types.NewDate(2024, 1, 10)))
	require.Equal(t, 31, fines.OverdueDays(due, types.NewDate(2024, 2, 8)))
}

func TestAmountZeroWhenNotOverdue(t *testing.T) {
	due := types.NewDate(2024, 1, 8)
	rate := decimal.RequireFromString("10.00")

	require.True(t, fines.Amount(due, types.NewDate(2024, 1, 7), rate).IsZero())
	require.True(t, fines.Amount(due, due, rate).IsZero())
}

func TestAmountTwoDaysLate(t *testing.T) {
	due := types.NewDate(2024, 1, 8)
	rate := decimal.RequireFromString("10.00")

	got := fines.Amount(due, types.NewDate(2024, 1, 10), rate)
	require.True(t, got.Equal(decimal.RequireFromString("20.00")), "got %s", got)
}

func TestAmountMonotonicInTime(t *testing.T) {
	due := types.NewDate(2024, 1, 8)
	rate := decimal.RequireFromString("2.50")

	prev := decimal.Zero
	day := types.NewDate(2024, 1, 5)
	for i := 0; i < 30; i++ {
		got := fines.Amount(due, day, rate)
		require.True(t, got.GreaterThanOrEqual(prev), "fine decreased at %s", day)
		prev = got
		day = day.AddDays(1)
	}
}

func TestAmountForLoanUsesCapturedRate(t *testing.T) {
	loan := &models.Loan{
		DueDate:    types.NewDate(2024, 1, 8),
		FinePerDay: decimal.RequireFromString("100.00"),
	}

	got := fines.AmountForLoan(loan, types.NewDate(2024, 1, 11))
	require.True(t, got.Equal(decimal.RequireFromString("300.00")), "got %s", got)
}

func TestAmountForLoanStopsAtReturnedDate(t *testing.T) {
	returned := types.NewDate(2024, 1, 10)
	loan := &models.Loan{
		DueDate:      types.NewDate(2024, 1, 8),
		ReturnedDate: &returned,
		FinePerDay:   decimal.RequireFromString("10.00"),
	}

	got := fines.AmountForLoan(loan, types.NewDate(2024, 3, 1))
	require.True(t, got.Equal(decimal.RequireFromString("20.00")), "got %s", got)
}

func TestAmountForLoanNil(t *testing.T) {
	require.True(t, fines.AmountForLoan(nil, types.Today()).IsZero())
}
