// Package converter converts amounts between currencies using the rate
// store's historical daily rates, pivoting every cross-rate through USD so
// the rate table stays one row per (currency, day) instead of one per
// currency pair.
//
// The bulk entry points implement the gap-fill strategy: one store lookup
// covering every (currency, day) pair needed, one provider round covering
// every distinct missing day, then one retry lookup. At most two store
// round-trips and one provider round per call regardless of item count.
//
// Every entry point takes an explicit asOf date; rate days are clamped to
// min(day, asOf) before lookup since rates for future days do not exist.
// Only the outermost boundary should pass money.Today().
package converter

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/triptally/triptally/pkg/money"
	"github.com/triptally/triptally/pkg/ratestore"
)

// ErrNoRate means an amount could not be converted even after the single
// built-in fetch-and-retry cycle. Callers get this instead of partial
// results: silently dropping an unconvertible item would corrupt totals.
var ErrNoRate = errors.New("no exchange rate available")

// RateStore is the slice of the rate store the converter needs.
type RateStore interface {
	Rate(ctx context.Context, currency string, day money.Date) (decimal.Decimal, error)
	RateMap(ctx context.Context, currencies []string, days []money.Date) (map[money.RateKey]decimal.Decimal, error)
	FetchAndStore(ctx context.Context, day money.Date) error
	BulkFetchAndStore(ctx context.Context, days []money.Date) error
}

type Converter struct {
	store RateStore
}

func New(store RateStore) *Converter {
	return &Converter{store: store}
}

// ToBase converts amount from currency into USD using the rate for
// min(day, asOf). Division by the stored foreign-per-USD rate, no
// intermediate rounding.
func (c *Converter) ToBase(ctx context.Context, amount decimal.Decimal, currency string, day, asOf money.Date) (decimal.Decimal, error) {
	if currency == money.BaseCurrency {
		return amount, nil
	}

	rate, err := c.rateWithRefetch(ctx, currency, money.MinDate(day, asOf))
	if err != nil {
		return decimal.Decimal{}, err
	}

	return amount.Div(rate), nil
}

// FromBase converts a USD amount into currency. Multiplication, symmetric
// to ToBase.
func (c *Converter) FromBase(ctx context.Context, amount decimal.Decimal, currency string, day, asOf money.Date) (decimal.Decimal, error) {
	if currency == money.BaseCurrency {
		return amount, nil
	}

	rate, err := c.rateWithRefetch(ctx, currency, money.MinDate(day, asOf))
	if err != nil {
		return decimal.Decimal{}, err
	}

	return amount.Mul(rate), nil
}

// Convert converts amount between two arbitrary currencies by composing
// ToBase and FromBase. Identity when from == to.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, day, asOf money.Date) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	baseAmount, err := c.ToBase(ctx, amount, from, day, asOf)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return c.FromBase(ctx, baseAmount, to, day, asOf)
}

// BulkToBase converts every item to USD. Results are keyed by the caller's
// correlation keys, never by position. Either every item converts or the
// call fails.
func (c *Converter) BulkToBase(ctx context.Context, items map[int]money.Money, asOf money.Date) (map[int]money.Money, error) {
	result := make(map[int]money.Money, len(items))
	pending := make(map[int]money.Money)

	for key, item := range items {
		if item.Currency == money.BaseCurrency {
			result[key] = item
		} else {
			pending[key] = item
		}
	}

	err := c.bulkConvert(ctx, pending, result, asOf, c.toBasePass)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// BulkFromBase converts items, all denominated in USD, into target.
func (c *Converter) BulkFromBase(ctx context.Context, items map[int]money.Money, target string, asOf money.Date) (map[int]money.Money, error) {
	result := make(map[int]money.Money, len(items))
	pending := make(map[int]money.Money, len(items))

	for key, item := range items {
		if target == money.BaseCurrency {
			result[key] = item
		} else {
			pending[key] = item
		}
	}

	pass := func(ctx context.Context, pending, result map[int]money.Money, asOf money.Date) (map[int]money.Money, error) {
		return c.fromBasePass(ctx, pending, result, target, asOf)
	}

	err := c.bulkConvert(ctx, pending, result, asOf, pass)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// BulkToCurrency converts mixed-currency items into target. Items already
// in target pass through unchanged, items already in USD skip the to-base
// leg, everything else goes through both legs.
func (c *Converter) BulkToCurrency(ctx context.Context, items map[int]money.Money, target string, asOf money.Date) (map[int]money.Money, error) {
	if target == money.BaseCurrency {
		return c.BulkToBase(ctx, items, asOf)
	}

	result := make(map[int]money.Money, len(items))
	inBase := make(map[int]money.Money)
	others := make(map[int]money.Money)

	for key, item := range items {
		switch item.Currency {
		case target:
			result[key] = item
		case money.BaseCurrency:
			inBase[key] = item
		default:
			others[key] = item
		}
	}

	othersInBase, err := c.BulkToBase(ctx, others, asOf)
	if err != nil {
		return nil, err
	}

	for key, item := range othersInBase {
		inBase[key] = item
	}

	converted, err := c.BulkFromBase(ctx, inBase, target, asOf)
	if err != nil {
		return nil, err
	}

	for key, item := range converted {
		result[key] = item
	}

	return result, nil
}

// conversionPass converts as many pending items as the store currently
// can, writing successes into result and returning the leftovers.
type conversionPass func(ctx context.Context, pending, result map[int]money.Money, asOf money.Date) (map[int]money.Money, error)

// bulkConvert runs the lookup / gap-fill / retry sequence. The gap fill
// happens at most once and must complete before the retry pass begins.
func (c *Converter) bulkConvert(ctx context.Context, pending, result map[int]money.Money, asOf money.Date, pass conversionPass) error {
	if len(pending) == 0 {
		return nil
	}

	missing, err := pass(ctx, pending, result, asOf)
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		err = c.store.BulkFetchAndStore(ctx, distinctClampedDays(missing, asOf))
		if err != nil {
			return err
		}

		missing, err = pass(ctx, missing, result, asOf)
		if err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %d amounts unconverted after gap fill", ErrNoRate, len(missing))
	}

	return nil
}

func (c *Converter) toBasePass(ctx context.Context, pending, result map[int]money.Money, asOf money.Date) (map[int]money.Money, error) {
	rates, err := c.store.RateMap(ctx, distinctCurrencies(pending), distinctClampedDays(pending, asOf))
	if err != nil {
		return nil, err
	}

	missing := make(map[int]money.Money)

	for key, item := range pending {
		rate, ok := rates[money.RateKey{Currency: item.Currency, Day: money.MinDate(item.Day, asOf)}]
		if !ok {
			missing[key] = item
			continue
		}

		result[key] = money.Money{Amount: item.Amount.Div(rate), Currency: money.BaseCurrency, Day: item.Day}
	}

	return missing, nil
}

func (c *Converter) fromBasePass(ctx context.Context, pending, result map[int]money.Money, target string, asOf money.Date) (map[int]money.Money, error) {
	rates, err := c.store.RateMap(ctx, []string{target}, distinctClampedDays(pending, asOf))
	if err != nil {
		return nil, err
	}

	missing := make(map[int]money.Money)

	for key, item := range pending {
		rate, ok := rates[money.RateKey{Currency: target, Day: money.MinDate(item.Day, asOf)}]
		if !ok {
			missing[key] = item
			continue
		}

		result[key] = money.Money{Amount: item.Amount.Mul(rate), Currency: target, Day: item.Day}
	}

	return missing, nil
}

// rateWithRefetch is the single-item variant of the gap-fill sequence:
// lookup, one FetchAndStore on miss, one retry.
func (c *Converter) rateWithRefetch(ctx context.Context, currency string, day money.Date) (decimal.Decimal, error) {
	rate, err := c.store.Rate(ctx, currency, day)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, ratestore.ErrRateNotFound) {
		return decimal.Decimal{}, err
	}

	err = c.store.FetchAndStore(ctx, day)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrNoRate, err)
	}

	rate, err = c.store.Rate(ctx, currency, day)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrNoRate, err)
	}

	return rate, nil
}

func distinctCurrencies(items map[int]money.Money) []string {
	seen := make(map[string]bool)
	currencies := []string{}

	for _, item := range items {
		if !seen[item.Currency] {
			seen[item.Currency] = true
			currencies = append(currencies, item.Currency)
		}
	}

	return currencies
}

func distinctClampedDays(items map[int]money.Money, asOf money.Date) []money.Date {
	seen := make(map[money.Date]bool)
	days := []money.Date{}

	for _, item := range items {
		day := money.MinDate(item.Day, asOf)
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}

	return days
}
