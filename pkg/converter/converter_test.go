package converter

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triptally/triptally/pkg/money"
	"github.com/triptally/triptally/pkg/ratestore"
)

// fakeStore keeps rates in memory. "Fetching" moves rates from fetchable
// into the stored set, mimicking a provider call followed by a save.
type fakeStore struct {
	rates     map[money.RateKey]decimal.Decimal
	fetchable map[money.RateKey]decimal.Decimal

	fetchCalls     int
	bulkFetchCalls int
	rateMapCalls   int
	fetchErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rates:     map[money.RateKey]decimal.Decimal{},
		fetchable: map[money.RateKey]decimal.Decimal{},
	}
}

func (s *fakeStore) withRate(currency string, day money.Date, rate string) *fakeStore {
	s.rates[money.RateKey{Currency: currency, Day: day}] = decimal.RequireFromString(rate)
	return s
}

func (s *fakeStore) withFetchableRate(currency string, day money.Date, rate string) *fakeStore {
	s.fetchable[money.RateKey{Currency: currency, Day: day}] = decimal.RequireFromString(rate)
	return s
}

func (s *fakeStore) Rate(ctx context.Context, currency string, day money.Date) (decimal.Decimal, error) {
	rate, ok := s.rates[money.RateKey{Currency: currency, Day: day}]
	if !ok {
		return decimal.Decimal{}, ratestore.ErrRateNotFound
	}
	return rate, nil
}

func (s *fakeStore) RateMap(ctx context.Context, currencies []string, days []money.Date) (map[money.RateKey]decimal.Decimal, error) {
	s.rateMapCalls++
	result := map[money.RateKey]decimal.Decimal{}
	for _, currency := range currencies {
		for _, day := range days {
			key := money.RateKey{Currency: currency, Day: day}
			if rate, ok := s.rates[key]; ok {
				result[key] = rate
			}
		}
	}
	return result, nil
}

func (s *fakeStore) FetchAndStore(ctx context.Context, day money.Date) error {
	s.fetchCalls++
	if s.fetchErr != nil {
		return s.fetchErr
	}
	for key, rate := range s.fetchable {
		if key.Day == day {
			s.rates[key] = rate
		}
	}
	return nil
}

func (s *fakeStore) BulkFetchAndStore(ctx context.Context, days []money.Date) error {
	s.bulkFetchCalls++
	if s.fetchErr != nil {
		return s.fetchErr
	}
	for _, day := range days {
		for key, rate := range s.fetchable {
			if key.Day == day {
				s.rates[key] = rate
			}
		}
	}
	return nil
}

var testDay = money.NewDate(2024, time.March, 9)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestConvertSameCurrencyIdentity(t *testing.T) {
	c := New(newFakeStore())

	got, err := c.Convert(context.Background(), dec("123.45"), "EUR", "EUR", testDay, testDay)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("123.45")))
}

func TestToBaseDividesByRate(t *testing.T) {
	// rate 0.5 EUR per USD: 10 EUR = 20 USD
	store := newFakeStore().withRate("EUR", testDay, "0.5")
	c := New(store)

	got, err := c.ToBase(context.Background(), dec("10"), "EUR", testDay, testDay)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("20")))

	back, err := c.FromBase(context.Background(), dec("20"), "EUR", testDay, testDay)
	require.NoError(t, err)
	assert.True(t, back.Equal(dec("10")))
}

func TestToBaseIdentityForUSD(t *testing.T) {
	c := New(newFakeStore())

	got, err := c.ToBase(context.Background(), dec("55"), money.BaseCurrency, testDay, testDay)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("55")))
}

func TestRoundTrip(t *testing.T) {
	store := newFakeStore().withRate("CAD", testDay, "1.3259")
	c := New(store)

	base, err := c.ToBase(context.Background(), dec("100"), "CAD", testDay, testDay)
	require.NoError(t, err)

	back, err := c.FromBase(context.Background(), base, "CAD", testDay, testDay)
	require.NoError(t, err)
	assert.True(t, back.Round(2).Equal(dec("100")))
}

func TestToBaseFetchesOnMiss(t *testing.T) {
	store := newFakeStore().withFetchableRate("EUR", testDay, "0.5")
	c := New(store)

	got, err := c.ToBase(context.Background(), dec("10"), "EUR", testDay, testDay)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("20")))
	assert.Equal(t, 1, store.fetchCalls)
}

func TestToBaseMissingRateAfterFetch(t *testing.T) {
	c := New(newFakeStore())

	_, err := c.ToBase(context.Background(), dec("10"), "EUR", testDay, testDay)
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestToBaseProviderFailure(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = ratestore.ErrProvider
	c := New(store)

	_, err := c.ToBase(context.Background(), dec("10"), "EUR", testDay, testDay)
	assert.ErrorIs(t, err, ErrNoRate)
	assert.ErrorIs(t, err, ratestore.ErrProvider)
}

func TestToBaseClampsFutureDay(t *testing.T) {
	asOf := testDay
	future := testDay.AddDays(30)
	store := newFakeStore().withRate("EUR", asOf, "0.5")
	c := New(store)

	got, err := c.ToBase(context.Background(), dec("10"), "EUR", future, asOf)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("20")))
	assert.Equal(t, 0, store.fetchCalls)
}

func TestBulkToBase(t *testing.T) {
	store := newFakeStore().
		withRate("EUR", testDay, "0.5").
		withRate("CAD", testDay, "2")
	c := New(store)

	items := map[int]money.Money{
		0: {Amount: dec("10"), Currency: "EUR", Day: testDay},
		1: {Amount: dec("30"), Currency: "CAD", Day: testDay},
		2: {Amount: dec("7"), Currency: money.BaseCurrency, Day: testDay},
	}

	result, err := c.BulkToBase(context.Background(), items, testDay)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.True(t, result[0].Amount.Equal(dec("20")))
	assert.True(t, result[1].Amount.Equal(dec("15")))
	assert.True(t, result[2].Amount.Equal(dec("7")))
	for _, item := range result {
		assert.Equal(t, money.BaseCurrency, item.Currency)
	}
	// all rates present: one lookup, no provider round
	assert.Equal(t, 1, store.rateMapCalls)
	assert.Equal(t, 0, store.bulkFetchCalls)
}

func TestBulkToBaseGapFillOnce(t *testing.T) {
	// many items needing the same missing (currency, day) trigger exactly
	// one provider round, not one per item
	store := newFakeStore().withFetchableRate("EUR", testDay, "0.5")
	c := New(store)

	items := map[int]money.Money{}
	for i := 0; i < 50; i++ {
		items[i] = money.Money{Amount: dec("10"), Currency: "EUR", Day: testDay}
	}

	result, err := c.BulkToBase(context.Background(), items, testDay)
	require.NoError(t, err)
	assert.Len(t, result, 50)
	assert.Equal(t, 1, store.bulkFetchCalls)
	assert.Equal(t, 2, store.rateMapCalls)
}

func TestBulkToBaseNoPartialResults(t *testing.T) {
	store := newFakeStore().withRate("EUR", testDay, "0.5")
	c := New(store)

	items := map[int]money.Money{
		0: {Amount: dec("10"), Currency: "EUR", Day: testDay},
		1: {Amount: dec("10"), Currency: "VES", Day: testDay},
	}

	_, err := c.BulkToBase(context.Background(), items, testDay)
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestBulkToCurrency(t *testing.T) {
	store := newFakeStore().
		withRate("EUR", testDay, "0.5").
		withRate("CAD", testDay, "2")
	c := New(store)

	items := map[int]money.Money{
		// 10 EUR -> 20 USD -> 40 CAD
		0: {Amount: dec("10"), Currency: "EUR", Day: testDay},
		// 5 USD -> 10 CAD
		1: {Amount: dec("5"), Currency: money.BaseCurrency, Day: testDay},
		// already CAD, passes through untouched
		2: {Amount: dec("9.99"), Currency: "CAD", Day: testDay},
	}

	result, err := c.BulkToCurrency(context.Background(), items, "CAD", testDay)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.True(t, result[0].Amount.Equal(dec("40")))
	assert.True(t, result[1].Amount.Equal(dec("10")))
	assert.True(t, result[2].Amount.Equal(dec("9.99")))
	for _, item := range result {
		assert.Equal(t, "CAD", item.Currency)
	}
}

func TestBulkToCurrencyBaseTarget(t *testing.T) {
	store := newFakeStore().withRate("EUR", testDay, "0.5")
	c := New(store)

	items := map[int]money.Money{
		0: {Amount: dec("10"), Currency: "EUR", Day: testDay},
	}

	result, err := c.BulkToCurrency(context.Background(), items, money.BaseCurrency, testDay)
	require.NoError(t, err)
	assert.True(t, result[0].Amount.Equal(dec("20")))
	assert.Equal(t, money.BaseCurrency, result[0].Currency)
}

func TestBulkToCurrencyKeysMatchInput(t *testing.T) {
	store := newFakeStore().
		withRate("EUR", testDay, "0.5").
		withRate("CAD", testDay, "2")
	c := New(store)

	items := map[int]money.Money{
		4:  {Amount: dec("1"), Currency: "EUR", Day: testDay},
		7:  {Amount: dec("2"), Currency: money.BaseCurrency, Day: testDay},
		12: {Amount: dec("3"), Currency: "CAD", Day: testDay},
	}

	result, err := c.BulkToCurrency(context.Background(), items, "CAD", testDay)
	require.NoError(t, err)
	require.Len(t, result, len(items))
	for key := range items {
		_, ok := result[key]
		assert.True(t, ok, "missing correlation key %d", key)
	}
}

func TestBulkFromBaseEmpty(t *testing.T) {
	c := New(newFakeStore())

	result, err := c.BulkFromBase(context.Background(), map[int]money.Money{}, "CAD", testDay)
	require.NoError(t, err)
	assert.Empty(t, result)
}
