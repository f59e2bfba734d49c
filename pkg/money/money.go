// Package money holds the value types shared by the rate store, the
// currency converter and the statistics engine: calendar dates without a
// time-of-day component, and amounts denominated in a currency for a
// specific day.
package money

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the pivot currency every cross-rate routes through.
// Stored rates are "units of foreign currency per 1 USD"; USD itself is
// never stored.
const BaseCurrency = "USD"

const dateLayout = "2006-01-02"

// Date is a calendar date. It is a plain comparable struct, not a
// time.Time, so it can key maps without monotonic-clock or location
// surprises.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current calendar date. Only the outermost boundary
// (main.go runners) should call this; everything below takes an explicit
// asOf date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("unable to parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysUntil returns the number of whole days from d to other. Negative
// when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

// MinDate returns the earlier of a and b. Used to clamp rate-lookup days
// to "not in the future": rates for future dates do not exist.
func MinDate(a, b Date) Date {
	if a.After(b) {
		return b
	}
	return a
}

// DatesInRange returns every calendar day from start to end inclusive.
// Returns nil when end is before start.
func DatesInRange(start, end Date) []Date {
	if end.Before(start) {
		return nil
	}
	days := make([]Date, 0, start.DaysUntil(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Money is an amount denominated in a currency for a specific day. The day
// is the date the amount is denominated for and drives rate lookups; it is
// not necessarily the day the amount was recorded.
type Money struct {
	Amount   decimal.Decimal
	Currency string
	Day      Date
}

// RateKey identifies one stored exchange rate. Used as a map key for bulk
// rate lookups.
type RateKey struct {
	Currency string
	Day      Date
}
