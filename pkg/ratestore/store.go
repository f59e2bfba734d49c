// Package ratestore owns persisted historical daily exchange rates and
// fills gaps from the external rate provider. Rates are facts: inserted in
// bulk by the scrape job or lazily on a conversion miss, never mutated,
// and only deleted by an explicit administrative series reload.
package ratestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"k8s.io/klog"

	"github.com/triptally/triptally/pkg/money"
)

// ErrRateNotFound means the store has no rate for that (currency, day).
// A cache miss, not a failure: the day may simply not be scraped yet, or
// the currency may not have existed on that historical day.
var ErrRateNotFound = errors.New("exchange rate not found")

// RateProvider is the external source of historical rates. One call
// covers every currency for the requested day.
type RateProvider interface {
	HistoricalRates(ctx context.Context, day money.Date) (map[string]decimal.Decimal, error)
}

type Store struct {
	db       *bun.DB
	provider RateProvider
}

func New(db *bun.DB, provider RateProvider) *Store {
	return &Store{db: db, provider: provider}
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, model := range []interface{}{(*SQLCurrency)(nil), (*SQLExchangeRate)(nil)} {
		_, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Rate is a pure lookup. The caller must already have clamped day to
// not-in-the-future.
func (s *Store) Rate(ctx context.Context, currency string, day money.Date) (decimal.Decimal, error) {
	rate := new(SQLExchangeRate)

	err := s.db.NewSelect().
		Model(rate).
		Where("currency = ?", currency).
		Where("day = ?", day.Time()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s on %s", ErrRateNotFound, currency, day)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("error reading rate for %s on %s: %w", currency, day, err)
	}

	return rate.Rate, nil
}

// RateMap fetches every stored rate matching any of the given currencies
// on any of the given days in a single query, keyed by (currency, day).
// The result may cover pairs the caller never asked for; that superset is
// harmless and keeps this one query instead of one per item.
func (s *Store) RateMap(ctx context.Context, currencies []string, days []money.Date) (map[money.RateKey]decimal.Decimal, error) {
	result := make(map[money.RateKey]decimal.Decimal)
	if len(currencies) == 0 || len(days) == 0 {
		return result, nil
	}

	dayTimes := make([]time.Time, 0, len(days))
	for _, day := range days {
		dayTimes = append(dayTimes, day.Time())
	}

	var rates []SQLExchangeRate

	err := s.db.NewSelect().
		Model(&rates).
		Where("currency IN (?)", bun.In(currencies)).
		Where("day IN (?)", bun.In(dayTimes)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading rates: %w", err)
	}

	for _, rate := range rates {
		result[rate.key()] = rate.Rate
	}

	return result, nil
}

// FetchAndStore asks the provider for day's rates and persists one row per
// known non-USD currency present in the response. Currencies the provider
// has no rate for are skipped, not errors. Inserts are no-ops for rows
// that already exist, so concurrent gap-fills for the same day are safe.
func (s *Store) FetchAndStore(ctx context.Context, day money.Date) error {
	rates, err := s.provider.HistoricalRates(ctx, day)
	if err != nil {
		return err
	}

	known, err := s.KnownCurrencies(ctx)
	if err != nil {
		return err
	}

	return s.insertRates(ctx, storableRates(rates, known, day))
}

// FetchAndStoreMissing is FetchAndStore restricted to currencies that have
// no stored row for day yet.
func (s *Store) FetchAndStoreMissing(ctx context.Context, day money.Date) error {
	rates, err := s.provider.HistoricalRates(ctx, day)
	if err != nil {
		return err
	}

	known, err := s.KnownCurrencies(ctx)
	if err != nil {
		return err
	}

	var present []string

	err = s.db.NewSelect().
		Model((*SQLExchangeRate)(nil)).
		Column("currency").
		Where("day = ?", day.Time()).
		Scan(ctx, &present)
	if err != nil {
		return fmt.Errorf("error reading stored currencies for %s: %w", day, err)
	}

	return s.insertRates(ctx, storableRates(rates, missingCurrencies(known, present), day))
}

// missingCurrencies returns the known codes that have no stored row yet,
// preserving the order of known. Rows already present for the day are
// never rewritten.
func missingCurrencies(known, present []string) []string {
	presentSet := make(map[string]bool, len(present))
	for _, code := range present {
		presentSet[code] = true
	}

	missing := make([]string, 0, len(known))
	for _, code := range known {
		if !presentSet[code] {
			missing = append(missing, code)
		}
	}

	return missing
}

// BulkFetchAndStore fetches every day in days sequentially (the provider
// has no multi-day endpoint) and persists all returned rates in one pass.
func (s *Store) BulkFetchAndStore(ctx context.Context, days []money.Date) error {
	known, err := s.KnownCurrencies(ctx)
	if err != nil {
		return err
	}

	rows := []SQLExchangeRate{}

	for _, day := range days {
		rates, err := s.provider.HistoricalRates(ctx, day)
		if err != nil {
			return err
		}

		rows = append(rows, storableRates(rates, known, day)...)
	}

	return s.insertRates(ctx, rows)
}

// ReplaceSeries reloads a currency's historical series: it deletes the
// currency's rows inside the series' day range and inserts the series.
// USD is rejected since its rate is definitionally 1 and never stored.
func (s *Store) ReplaceSeries(ctx context.Context, currency string, series []DatedRate) error {
	if currency == money.BaseCurrency {
		return fmt.Errorf("cannot load a rate series for %s: all its rates are 1", money.BaseCurrency)
	}
	if len(series) == 0 {
		return nil
	}

	minDay, maxDay := series[0].Day, series[0].Day
	for _, point := range series[1:] {
		minDay = money.MinDate(minDay, point.Day)
		if point.Day.After(maxDay) {
			maxDay = point.Day
		}
	}

	_, err := s.db.NewDelete().
		Model((*SQLExchangeRate)(nil)).
		Where("currency = ?", currency).
		Where("day >= ?", minDay.Time()).
		Where("day <= ?", maxDay.Time()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error deleting %s rates between %s and %s: %w", currency, minDay, maxDay, err)
	}

	rows := make([]SQLExchangeRate, 0, len(series))
	for _, point := range series {
		rows = append(rows, SQLExchangeRate{Currency: currency, Day: point.Day.Time(), Rate: point.Rate})
	}

	klog.Infof("replacing %d %s rates between %s and %s", len(rows), currency, minDay, maxDay)

	return s.insertRates(ctx, rows)
}

// KnownCurrencies returns every non-USD currency code the system knows,
// ordered by code.
func (s *Store) KnownCurrencies(ctx context.Context) ([]string, error) {
	var codes []string

	err := s.db.NewSelect().
		Model((*SQLCurrency)(nil)).
		Column("code").
		Where("code != ?", money.BaseCurrency).
		Order("code").
		Scan(ctx, &codes)
	if err != nil {
		return nil, fmt.Errorf("error reading currencies: %w", err)
	}

	return codes, nil
}

// CurrencyExists reports whether code is a known currency.
func (s *Store) CurrencyExists(ctx context.Context, code string) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*SQLCurrency)(nil)).
		Where("code = ?", code).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("error reading currency %s: %w", code, err)
	}

	return count > 0, nil
}

func (s *Store) insertRates(ctx context.Context, rows []SQLExchangeRate) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (currency, day) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error writing %d rates to sql: %w", len(rows), err)
	}

	return nil
}

// storableRates picks out of a provider response the rows to persist: one
// per wanted currency that the response actually has a rate for.
func storableRates(rates map[string]decimal.Decimal, wanted []string, day money.Date) []SQLExchangeRate {
	rows := make([]SQLExchangeRate, 0, len(wanted))

	for _, code := range wanted {
		rate, ok := rates[code]
		if !ok {
			continue
		}

		rows = append(rows, SQLExchangeRate{Currency: code, Day: day.Time(), Rate: rate})
	}

	return rows
}
