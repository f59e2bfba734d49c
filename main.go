package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron"

	"github.com/triptally/triptally/internal/scraper"
	"github.com/triptally/triptally/internal/statsexport"
	"github.com/triptally/triptally/pkg/config"
)

const configEnvVar = "TRIPTALLY_CONFIG"

type Runner interface {
	Run() error
}

var runner Runner

func main() {
	singleRun := flag.Bool("single-run", false, "run task once (disable cron)")
	configFile := flag.String("config", "./config.yml", "configuration file")
	secretsFile := flag.String("secrets", "./secrets.json", "secrets file")
	userID := flag.Int64("user", 0, "user id for the export task")
	help := flag.Bool("help", false, "show command help")

	flag.Parse()

	if *help {
		fmt.Println("exchange rate scraper and statistics exporter")
		fmt.Println("triptally [options] task")
		fmt.Println("tasks: scrape | backfill <currency> <csv> | export")
		flag.PrintDefaults()
		return
	}

	err := config.ReadConfig(configEnvVar, *configFile, *secretsFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("No task passed in")
		return
	}

	switch args[0] {
	case "scrape":
		runner, err = scraper.NewScrapeRunner()
	case "backfill":
		if len(args) < 3 {
			fmt.Println("backfill needs a currency code and a csv file")
			os.Exit(1)
		}
		runner, err = scraper.NewBackfillRunner(args[1], args[2])
		// backfill is one-shot by nature
		*singleRun = true
	case "export":
		if *userID == 0 {
			fmt.Println("export needs -user")
			os.Exit(1)
		}
		runner = statsexport.NewExportRunner(*userID)
	default:
		fmt.Printf("Unknown task %s\n", args[0])
		return
	}

	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	run()

	if *singleRun || config.CurrentConfig().UpdateFrequency == "" {
		return
	}

	c := cron.New()
	c.AddFunc(config.CurrentConfig().UpdateFrequency, run)

	c.Start()

	select {}
}

func run() {
	fmt.Println(time.Now().Format(time.RFC850))
	err := runner.Run()
	if err != nil {
		fmt.Println(err)
	}
}
