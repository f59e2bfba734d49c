package config

type Config struct {
	// cron spec for the daily rate scrape loop
	UpdateFrequency string

	SQL struct {
		Database string
	}

	Statistics StatisticsConfig
	Influx     InfluxConfig
	Provider   ProviderConfig
}

type StatisticsConfig struct {
	// reporting currency used when a user has no preference; USD if empty
	DefaultCurrency string
	// trailing window length for the statistics export task
	WindowDays int
}

type InfluxConfig struct {
	Database            string
	TimelineMeasurement string
	CategoryMeasurement string
}

type ProviderConfig struct {
	// override for tests/self-hosted mirrors; the public endpoint if empty
	Endpoint string
	// request timeout in seconds; 10 if zero
	TimeoutSeconds int
}

type Secrets struct {
	OpenExchangeRates OpenExchangeRatesSecrets `json:"openexchangerates"`
	Influx            InfluxSecrets
	SQL               SqlSecrets

	// Alternative to the SQL struct, designed to be used with a heroku
	// style environment variable
	DatabaseURL string `env:"DATABASE_URL"`
}

type OpenExchangeRatesSecrets struct {
	AppID string `json:"appId" env:"OPENEXCHANGERATES_APP_ID"`
}

type InfluxSecrets struct {
	InfluxEndpoint string `env:"INFLUX_ENDPOINT"`
	InfluxUsername string `env:"INFLUX_USERNAME"`
	InfluxPassword string `env:"INFLUX_PASSWORD"`
}

type SqlSecrets struct {
	SqlHost     string `env:"SQL_HOST"`
	SqlUsername string `env:"SQL_USERNAME"`
	SqlPassword string `env:"SQL_PASSWORD"`
}
