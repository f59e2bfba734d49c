// Package scraper holds the operational runners around the rate store:
// the daily scrape of yesterday's rates and the administrative reload of
// a currency's historical series from CSV.
package scraper

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog"

	"github.com/triptally/triptally/pkg/config"
	"github.com/triptally/triptally/pkg/money"
	"github.com/triptally/triptally/pkg/postgresutils"
	"github.com/triptally/triptally/pkg/ratestore"
)

// ScrapeRunner fetches yesterday's exchange rates from the provider and
// stores the ones not already present. Re-running it for the same day is
// a no-op thanks to the store's insert semantics.
type ScrapeRunner struct {
	store *ratestore.Store
}

func NewScrapeRunner() (*ScrapeRunner, error) {
	store, err := OpenRateStore()
	if err != nil {
		return nil, err
	}

	return &ScrapeRunner{store: store}, nil
}

func (r *ScrapeRunner) Run() error {
	ctx := context.Background()
	yesterday := money.Today().AddDays(-1)

	klog.Infof("fetching exchange rates for %s", yesterday)

	err := r.store.FetchAndStoreMissing(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("scraping rates for %s: %w", yesterday, err)
	}

	klog.Infof("stored exchange rates for %s", yesterday)

	return nil
}

// OpenRateStore wires a rate store against the configured postgres
// database and rate provider.
func OpenRateStore() (*ratestore.Store, error) {
	db, err := postgresutils.CreatePostgresClient(config.CurrentConfig().SQL.Database)
	if err != nil {
		return nil, fmt.Errorf("Error connecting to postgres DB: %s", err)
	}

	providerConfig := config.CurrentProviderConfig()
	endpoint := providerConfig.Endpoint
	if endpoint == "" {
		endpoint = ratestore.DefaultProviderEndpoint
	}

	provider := ratestore.NewProviderWithEndpoint(
		config.CurrentOpenExchangeRatesSecrets().AppID,
		endpoint,
		time.Duration(providerConfig.TimeoutSeconds)*time.Second,
	)

	store := ratestore.New(db, provider)

	err = store.Migrate(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error migrating rate tables: %w", err)
	}

	return store, nil
}
