package statistics

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/triptally/triptally/pkg/money"
)

// AmortizeValue distributes a value evenly across numDays, rounding every
// day's share independently to 2 decimal places with half-to-even
// tie-breaking. Because no remainder is carried forward, the shares can
// sum to up to numDays x 0.005 away from the original value. A zero value
// amortizes to zero for every day.
func AmortizeValue(value decimal.Decimal, numDays int) decimal.Decimal {
	if value.IsZero() {
		return decimal.Zero
	}
	return value.Div(decimal.NewFromInt(int64(numDays))).RoundBank(2)
}

// Expand distributes an expense across every day of its amortization
// window. A degenerate single-day window yields one allocation carrying
// the full original amount unchanged.
func Expand(e Expense) ([]Allocation, error) {
	if e.AmortizationEnd.Before(e.AmortizationStart) {
		return nil, fmt.Errorf("%w: amortization %s > %s", ErrInvalidRange, e.AmortizationStart, e.AmortizationEnd)
	}

	if e.AmortizationStart == e.AmortizationEnd {
		return []Allocation{allocationFor(e, e.AmortizationStart, e.Amount)}, nil
	}

	numDays := e.AmortizationStart.DaysUntil(e.AmortizationEnd) + 1
	share := AmortizeValue(e.Amount, numDays)

	allocations := make([]Allocation, 0, numDays)
	for day := e.AmortizationStart; !day.After(e.AmortizationEnd); day = day.AddDays(1) {
		allocations = append(allocations, allocationFor(e, day, share))
	}

	return allocations, nil
}

func allocationFor(e Expense, day money.Date, amount decimal.Decimal) Allocation {
	return Allocation{
		Amount:      amount,
		Currency:    e.Currency,
		ExpenseDate: e.ExpenseDate,
		Day:         day,
		CategoryID:  e.CategoryID,
		TripID:      e.TripID,
		IsExpense:   e.IsExpense,
	}
}
