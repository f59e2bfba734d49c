// Package statsexport pushes a user's statistics to InfluxDB: the
// amortization timeline and per-category totals over a trailing window,
// one point per day / per category.
package statsexport

import (
	"context"
	"fmt"

	influx "github.com/influxdata/influxdb/client/v2"
	"k8s.io/klog"

	"github.com/triptally/triptally/internal/scraper"
	"github.com/triptally/triptally/pkg/config"
	"github.com/triptally/triptally/pkg/converter"
	"github.com/triptally/triptally/pkg/expensestore"
	"github.com/triptally/triptally/pkg/money"
	"github.com/triptally/triptally/pkg/postgresutils"
	"github.com/triptally/triptally/pkg/statistics"
)

const defaultWindowDays = 30

type ExportRunner struct {
	userID int64
}

func NewExportRunner(userID int64) *ExportRunner {
	return &ExportRunner{userID: userID}
}

func (r *ExportRunner) Run() error {
	ctx := context.Background()
	today := money.Today()

	rateStore, err := scraper.OpenRateStore()
	if err != nil {
		return err
	}

	db, err := postgresutils.CreatePostgresClient(config.CurrentConfig().SQL.Database)
	if err != nil {
		return fmt.Errorf("Error connecting to postgres DB: %s", err)
	}

	expenseStore := expensestore.New(db)

	expenses, err := expenseStore.ExpensesByUser(ctx, r.userID)
	if err != nil {
		return err
	}

	categories, err := expenseStore.ExpenseCategoriesByUser(ctx, r.userID)
	if err != nil {
		return err
	}

	currency, err := r.reportingCurrency(ctx, expenseStore)
	if err != nil {
		return err
	}

	windowDays := config.CurrentStatisticsConfig().WindowDays
	if windowDays == 0 {
		windowDays = defaultWindowDays
	}
	window := statistics.Window{Start: today.AddDays(-(windowDays - 1)), End: today}

	aggregator := statistics.NewAggregator(converter.New(rateStore))

	timeline, err := aggregator.Timeline(ctx, expenses, window, currency, today)
	if err != nil {
		return err
	}

	totals, err := aggregator.CategoryTotals(ctx, expenses, categories, window, currency, today)
	if err != nil {
		return err
	}

	return r.writeToInflux(timeline, totals, currency)
}

// reportingCurrency resolves user preference, then the configured
// default, then USD.
func (r *ExportRunner) reportingCurrency(ctx context.Context, store *expensestore.Store) (string, error) {
	currency, err := store.PreferredCurrency(ctx, r.userID)
	if err != nil {
		return "", err
	}
	if currency == "" {
		currency = config.CurrentStatisticsConfig().DefaultCurrency
	}
	if currency == "" {
		currency = money.BaseCurrency
	}
	return currency, nil
}

func (r *ExportRunner) writeToInflux(timeline []statistics.TimelinePoint, totals []statistics.CategoryTotal, currency string) error {
	influxConfig := config.CurrentInfluxConfig()

	client, err := createInfluxClient()
	if err != nil {
		return fmt.Errorf("Error creating InfluxDB client: %s", err.Error())
	}
	defer client.Close()

	err = createDatabase(client, influxConfig.Database)
	if err != nil {
		return err
	}

	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:  influxConfig.Database,
		Precision: "h",
	})
	if err != nil {
		return fmt.Errorf("Error creating InfluxDB point batch: %s", err.Error())
	}

	userTag := fmt.Sprintf("%d", r.userID)

	for _, point := range timeline {
		pt, err := influx.NewPoint(influxConfig.TimelineMeasurement,
			map[string]string{
				"user":     userTag,
				"currency": currency,
			},
			map[string]interface{}{
				"expense":    point.ExpenseAmount.InexactFloat64(),
				"income":     point.NonExpenseAmount.InexactFloat64(),
				"difference": point.Difference.InexactFloat64(),
			},
			point.Date.Time())
		if err != nil {
			return err
		}
		bp.AddPoint(pt)
	}

	for _, total := range totals {
		pt, err := influx.NewPoint(influxConfig.CategoryMeasurement,
			map[string]string{
				"user":     userTag,
				"currency": currency,
				"category": total.Category.Name,
			},
			map[string]interface{}{
				"amount": total.Amount.InexactFloat64(),
			})
		if err != nil {
			return err
		}
		bp.AddPoint(pt)
	}

	err = client.Write(bp)
	if err != nil {
		return err
	}

	klog.Infof("wrote %d timeline points and %d category totals to influx", len(timeline), len(totals))

	return nil
}

func createInfluxClient() (influx.Client, error) {
	secrets := config.CurrentInfluxSecrets()

	return influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     secrets.InfluxEndpoint,
		Username: secrets.InfluxUsername,
		Password: secrets.InfluxPassword,
	})
}

func createDatabase(client influx.Client, name string) error {
	q := influx.NewQuery(fmt.Sprintf("CREATE DATABASE %s", name), "", "")
	if response, err := client.Query(q); err == nil && response.Error() != nil {
		return err
	}
	return nil
}
