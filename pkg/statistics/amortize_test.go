package statistics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptally/triptally/pkg/money"
)

var day1 = money.NewDate(2024, time.March, 1)

func expenseOver(amount string, start, end money.Date) Expense {
	return Expense{
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USD",
		ExpenseDate:       start,
		AmortizationStart: start,
		AmortizationEnd:   end,
		CategoryID:        1,
		IsExpense:         true,
	}
}

func TestExpandSingleDayIdentity(t *testing.T) {
	allocations, err := Expand(expenseOver("33.337", day1, day1))
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	// the full original amount passes through unrounded
	assert.True(t, allocations[0].Amount.Equal(decimal.RequireFromString("33.337")))
	assert.Equal(t, day1, allocations[0].Day)
}

func TestExpandEvenSplit(t *testing.T) {
	// 100 over 4 days divides evenly into 25.00
	allocations, err := Expand(expenseOver("100", day1, day1.AddDays(3)))
	require.NoError(t, err)
	require.Len(t, allocations, 4)
	for i, allocation := range allocations {
		assert.True(t, allocation.Amount.Equal(decimal.RequireFromString("25")), "day %d", i)
		assert.Equal(t, day1.AddDays(i), allocation.Day)
		assert.Equal(t, day1, allocation.ExpenseDate)
	}

	// 100 over 5 days divides evenly into 20.00
	allocations, err = Expand(expenseOver("100", day1, day1.AddDays(4)))
	require.NoError(t, err)
	require.Len(t, allocations, 5)
	for _, allocation := range allocations {
		assert.True(t, allocation.Amount.Equal(decimal.RequireFromString("20")))
	}
}

func TestExpandSumBound(t *testing.T) {
	cases := []struct {
		amount string
		days   int
	}{
		{"100", 3},
		{"100", 7},
		{"0.01", 3},
		{"99.99", 30},
		{"1234.56", 365},
	}

	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)

		allocations, err := Expand(expenseOver(tc.amount, day1, day1.AddDays(tc.days-1)))
		require.NoError(t, err)
		require.Len(t, allocations, tc.days)

		sum := decimal.Zero
		for _, allocation := range allocations {
			sum = sum.Add(allocation.Amount)
		}

		// per-day independent rounding drifts at most 0.005 per day
		bound := decimal.RequireFromString("0.005").Mul(decimal.NewFromInt(int64(tc.days)))
		drift := sum.Sub(amount).Abs()
		assert.True(t, drift.LessThanOrEqual(bound),
			"%s over %d days: sum %s drift %s exceeds %s", tc.amount, tc.days, sum, drift, bound)
	}
}

func TestExpandZeroAmount(t *testing.T) {
	allocations, err := Expand(expenseOver("0", day1, day1.AddDays(9)))
	require.NoError(t, err)
	require.Len(t, allocations, 10)
	for _, allocation := range allocations {
		assert.True(t, allocation.Amount.IsZero())
	}
}

func TestExpandInvalidRange(t *testing.T) {
	_, err := Expand(expenseOver("100", day1, day1.AddDays(-1)))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestAmortizeValueRounding(t *testing.T) {
	// 100/3 rounds each share to 33.33
	share := AmortizeValue(decimal.RequireFromString("100"), 3)
	assert.True(t, share.Equal(decimal.RequireFromString("33.33")))

	// 0.01/3 rounds to 0.00 for every day
	share = AmortizeValue(decimal.RequireFromString("0.01"), 3)
	assert.True(t, share.IsZero())

	assert.True(t, AmortizeValue(decimal.Zero, 5).IsZero())
}

func TestAmortizeValueHalfEvenTies(t *testing.T) {
	// exact half-cent shares round to the even cent, not away from zero
	cases := []struct {
		amount string
		days   int
		share  string
	}{
		{"0.05", 2, "0.02"}, // 0.025 -> 2 is even
		{"0.07", 2, "0.04"}, // 0.035 -> 3 rounds up to 4
		{"0.25", 10, "0.02"},
		{"1.25", 10, "0.12"}, // 0.125 -> 12 is even
	}

	for _, tc := range cases {
		share := AmortizeValue(decimal.RequireFromString(tc.amount), tc.days)
		assert.True(t, share.Equal(decimal.RequireFromString(tc.share)),
			"%s over %d days: got %s, expected %s", tc.amount, tc.days, share, tc.share)
	}
}
