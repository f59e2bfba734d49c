package statistics

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/triptally/triptally/pkg/money"
)

// CurrencyConverter is the slice of the converter the aggregator needs:
// bulk conversion keyed by correlation key, so results never depend on
// positional order.
type CurrencyConverter interface {
	BulkToCurrency(ctx context.Context, items map[int]money.Money, target string, asOf money.Date) (map[int]money.Money, error)
}

// Aggregator computes statistics over a transaction set. Stateless apart
// from the rate-store side channel behind the converter; both operations
// are pure functions of their inputs plus asOf.
type Aggregator struct {
	converter CurrencyConverter
}

func NewAggregator(converter CurrencyConverter) *Aggregator {
	return &Aggregator{converter: converter}
}

// CategoryTotals sums expense allocations falling inside window per
// category, in the reporting currency. Every supplied category appears in
// the output, zero-amount ones included, sorted by descending amount.
func (a *Aggregator) CategoryTotals(ctx context.Context, expenses []Expense, categories []Category, window Window, currency string, asOf money.Date) ([]CategoryTotal, error) {
	err := window.Validate()
	if err != nil {
		return nil, err
	}

	byDay, err := a.convertAndExpand(ctx, expenses, currency, asOf)
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]decimal.Decimal, len(categories))
	for _, category := range categories {
		totals[category.ID] = decimal.Zero
	}

	for day, allocations := range byDay {
		if !window.contains(day) {
			continue
		}
		for _, allocation := range allocations {
			if !allocation.IsExpense {
				continue
			}
			total, ok := totals[allocation.CategoryID]
			if !ok {
				// not one of the requested categories
				continue
			}
			totals[allocation.CategoryID] = total.Add(allocation.Amount)
		}
	}

	result := make([]CategoryTotal, 0, len(categories))
	for _, category := range categories {
		result = append(result, CategoryTotal{
			Category: category,
			Currency: currency,
			Amount:   totals[category.ID].Round(2),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Amount.GreaterThan(result[j].Amount)
	})

	return result, nil
}

// Timeline produces one point per calendar day of the window, always
// exactly window.Days() of them: the day's expense total alongside the
// cumulative income balance up to that day.
func (a *Aggregator) Timeline(ctx context.Context, expenses []Expense, window Window, currency string, asOf money.Date) ([]TimelinePoint, error) {
	err := window.Validate()
	if err != nil {
		return nil, err
	}

	byDay, err := a.convertAndExpand(ctx, expenses, currency, asOf)
	if err != nil {
		return nil, err
	}

	timeline := make([]TimelinePoint, 0, window.Days())
	cumulativeIncome := decimal.Zero

	for _, day := range money.DatesInRange(window.Start, window.End) {
		dayExpense := decimal.Zero
		dayIncome := decimal.Zero

		for _, allocation := range byDay[day] {
			if allocation.IsExpense {
				dayExpense = dayExpense.Add(allocation.Amount)
			} else {
				dayIncome = dayIncome.Add(allocation.Amount)
			}
		}

		cumulativeIncome = cumulativeIncome.Add(dayIncome)

		timeline = append(timeline, TimelinePoint{
			Date:             day,
			ExpenseAmount:    dayExpense.Round(2),
			NonExpenseAmount: cumulativeIncome.Round(2),
			Difference:       cumulativeIncome.Sub(dayExpense).Round(2),
		})
	}

	return timeline, nil
}

// convertAndExpand normalizes every expense into the reporting currency
// (one bulk conversion, rate day = expense date) and then amortizes the
// converted amounts into per-day allocations.
func (a *Aggregator) convertAndExpand(ctx context.Context, expenses []Expense, currency string, asOf money.Date) (map[money.Date][]Allocation, error) {
	items := make(map[int]money.Money, len(expenses))
	for i, expense := range expenses {
		items[i] = money.Money{Amount: expense.Amount, Currency: expense.Currency, Day: expense.ExpenseDate}
	}

	converted, err := a.converter.BulkToCurrency(ctx, items, currency, asOf)
	if err != nil {
		return nil, err
	}

	byDay := make(map[money.Date][]Allocation)

	for i, expense := range expenses {
		item, ok := converted[i]
		if !ok {
			return nil, fmt.Errorf("conversion dropped expense %d dated %s", i, expense.ExpenseDate)
		}

		expense.Amount = item.Amount
		expense.Currency = currency

		allocations, err := Expand(expense)
		if err != nil {
			return nil, err
		}

		for _, allocation := range allocations {
			byDay[allocation.Day] = append(byDay[allocation.Day], allocation)
		}
	}

	return byDay, nil
}
