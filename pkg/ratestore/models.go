package ratestore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/triptally/triptally/pkg/money"
)

type SQLCurrency struct {
	bun.BaseModel `bun:"table:currencies"`
	ID            int64  `bun:",pk,autoincrement"`
	Code          string `bun:",unique"`
	Symbol        string
	DisplayName   string
}

// SQLExchangeRate is one historical daily rate: units of Currency per
// 1 USD on Day. Unique per (currency, day); rows are never updated.
type SQLExchangeRate struct {
	bun.BaseModel `bun:"table:exchange_rates"`
	ID            int64           `bun:",pk,autoincrement"`
	Currency      string          `bun:",unique:exchange_rates_currency_day"`
	Day           time.Time       `bun:"type:date,unique:exchange_rates_currency_day"`
	Rate          decimal.Decimal `bun:"type:numeric(14,4)"`
}

func (r SQLExchangeRate) key() money.RateKey {
	return money.RateKey{Currency: r.Currency, Day: money.DateOf(r.Day)}
}

// DatedRate is one (day, rate) point of a currency's historical series,
// used by the administrative bulk reload.
type DatedRate struct {
	Day  money.Date
	Rate decimal.Decimal
}
