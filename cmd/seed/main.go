// Command main fills the database with demo users, items and requests.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"kindkart/internal/config"
	"kindkart/internal/database"
	"kindkart/internal/observability"
	"kindkart/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	donors := flag.Int("donors", defaults.Donors, "Number of donors to create")
	recipients := flag.Int("recipients", defaults.Recipients, "Number of recipients to create")
	ngos := flag.Int("ngos", defaults.NGOs, "Number of NGOs to create")
	itemsPerDonor := flag.Int("items-per-donor", defaults.ItemsPerDonor, "Items listed by each donor")
	requests := flag.Int("requests", defaults.Requests, "Requests driven through the lifecycle")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	preset := flag.String("preset", "", "YAML preset file (overrides the count flags)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.ConfigureLogger(cfg.Env, cfg.LogFile)
	log := observability.GlobalLogger

	if cfg.IsProduction() {
		log.Error("refusing to seed a production database")
		os.Exit(1)
	}

	opts := seed.Options{
		Donors:        *donors,
		Recipients:    *recipients,
		NGOs:          *ngos,
		ItemsPerDonor: *itemsPerDonor,
		Requests:      *requests,
	}
	if *preset != "" {
		p, err := seed.LoadPreset(*preset)
		if err != nil {
			log.Error("failed to load preset", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts = p.Options(opts)
		log.Info("applying preset", slog.String("path", *preset))
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	s := seed.NewSeeder(db, opts)
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Error("cleanup failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	summary, err := s.Run(ctx)
	if err != nil {
		log.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	for status, n := range summary.Requests {
		log.Info("requests seeded", slog.String("status", string(status)), slog.Int("count", n))
	}
	log.Info("all seeded accounts share one password", slog.String("password", seed.DemoPassword))
}
