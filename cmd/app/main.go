package main

import (
	"flag"
	"log"
	"os"

	"ForecastMix/internal/di"
	"ForecastMix/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	log.Printf("env=%s sink=%s", cfg.Environment, cfg.History.Sink)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return err
	}
	log.Printf("clickhouse: schema ready db=%s", cfg.ClickHouse.Database)
	log.Printf("kafka: brokers=%v events=%s results=%s", cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.ResultsTopic)

	// Blocks until a shutdown signal arrives.
	return app.Run()
}
