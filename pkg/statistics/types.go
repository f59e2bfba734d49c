// Package statistics turns raw transactions into time-bucketed,
// currency-normalized statistics: each transaction's amount is spread
// evenly across its amortization window, normalized into one reporting
// currency, and aggregated by category or by calendar day.
package statistics

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/triptally/triptally/pkg/money"
)

// ErrInvalidRange rejects windows and amortization ranges whose end date
// is before their start date, before any computation or I/O starts.
var ErrInvalidRange = errors.New("end date is before start date")

// Expense is one raw transaction: an amount in some currency, recorded on
// ExpenseDate, amortized over [AmortizationStart, AmortizationEnd].
// Category and trip are carried as opaque IDs. IsExpense is true for
// outflows and false for income.
type Expense struct {
	Amount            decimal.Decimal
	Currency          string
	ExpenseDate       money.Date
	AmortizationStart money.Date
	AmortizationEnd   money.Date
	CategoryID        int64
	TripID            int64
	IsExpense         bool
}

// Allocation is one day's fractional share of an amortized expense.
// Ephemeral and derived, never persisted. Day is the single amortization
// day this share represents; ExpenseDate is carried through unchanged.
type Allocation struct {
	Amount      decimal.Decimal
	Currency    string
	ExpenseDate money.Date
	Day         money.Date
	CategoryID  int64
	TripID      int64
	IsExpense   bool
}

// Category is one of the requesting user's expense categories. Every
// supplied category gets a bucket in CategoryTotals, even with no
// matching allocations.
type Category struct {
	ID   int64
	Name string
}

// Window is an inclusive [Start, End] date range.
type Window struct {
	Start money.Date
	End   money.Date
}

func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange, w.Start, w.End)
	}
	return nil
}

// Days returns the number of calendar days the window covers.
func (w Window) Days() int {
	return w.Start.DaysUntil(w.End) + 1
}

func (w Window) contains(day money.Date) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

// CategoryTotal is the total expense amount of one category inside a
// window, in the reporting currency.
type CategoryTotal struct {
	Category Category
	Currency string
	Amount   decimal.Decimal
}

// TimelinePoint is one calendar day of the amortization timeline.
// ExpenseAmount is that day's expense total (not cumulative);
// NonExpenseAmount is the cumulative income seen so far in the window;
// Difference is the cumulative income minus that day's expense total.
type TimelinePoint struct {
	Date             money.Date
	ExpenseAmount    decimal.Decimal
	NonExpenseAmount decimal.Decimal
	Difference       decimal.Decimal
}
