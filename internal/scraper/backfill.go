package scraper

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"k8s.io/klog"

	"github.com/triptally/triptally/pkg/money"
	"github.com/triptally/triptally/pkg/ratestore"
)

// BackfillRunner reloads one currency's historical rate series from a CSV
// file of "date,rate" rows (header included). The stored series inside
// the file's date range is replaced wholesale.
type BackfillRunner struct {
	store    *ratestore.Store
	currency string
	csvFile  string
}

func NewBackfillRunner(currency, csvFile string) (*BackfillRunner, error) {
	store, err := OpenRateStore()
	if err != nil {
		return nil, err
	}

	return &BackfillRunner{
		store:    store,
		currency: strings.ToUpper(currency),
		csvFile:  csvFile,
	}, nil
}

func (r *BackfillRunner) Run() error {
	ctx := context.Background()

	if r.currency == money.BaseCurrency {
		return fmt.Errorf("%s is not a valid backfill currency as all its rates are 1", money.BaseCurrency)
	}

	exists, err := r.store.CurrencyExists(ctx, r.currency)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("unknown currency %s", r.currency)
	}

	csvFile, err := os.Open(r.csvFile)
	if err != nil {
		return fmt.Errorf("failed to open %s csv file: %w", r.csvFile, err)
	}
	defer csvFile.Close()

	series, err := parseRateSeries(bufio.NewReader(csvFile))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", r.csvFile, err)
	}

	err = r.store.ReplaceSeries(ctx, r.currency, series)
	if err != nil {
		return err
	}

	klog.Infof("loaded %d %s rates from %s", len(series), r.currency, r.csvFile)

	return nil
}

// parseRateSeries reads "date,rate" rows after a header line.
func parseRateSeries(reader io.Reader) ([]ratestore.DatedRate, error) {
	csvReader := csv.NewReader(reader)

	_, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	series := []ratestore.DatedRate{}

	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("csv row %d has %d columns, expected 2", len(series)+2, len(row))
		}

		day, err := money.ParseDate(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, err
		}

		rate, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, fmt.Errorf("unable to parse rate %q for %s: %w", row[1], day, err)
		}

		series = append(series, ratestore.DatedRate{Day: day, Rate: rate})
	}

	return series, nil
}
