// Command sweeper deletes expired refresh tokens and trusted devices. It is
// idempotent and meant to run from cron.
package main

import (
	"context"
	"os"
	"time"

	"github.com/labstack/gommon/log"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/campaign-session/internal/config"
	"github.com/iliyamo/campaign-session/internal/database"
	"github.com/iliyamo/campaign-session/internal/logging"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/service"
)

func main() {
	tokens := flag.Bool("tokens", true, "sweep expired refresh tokens")
	devices := flag.Bool("devices", true, "sweep expired trusted devices")
	dryRun := flag.Bool("dry-run", false, "count expired rows without deleting them")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit")
	flag.Parse()

	cfg, err := config.Load()
	logger := logging.New("sweeper", cfg.LogLevel)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "config_invalid", "error": err.Error()})
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "db_open_failed", "error": err.Error()})
	}
	defer db.Close()

	var targets []service.SweepTarget
	if *tokens {
		targets = append(targets, service.SweepTarget{Name: "refresh_tokens", Store: repository.NewTokenRepo(db)})
	}
	if *devices {
		targets = append(targets, service.SweepTarget{Name: "trusted_devices", Store: repository.NewDeviceRepo(db)})
	}
	if len(targets) == 0 {
		logger.Warnj(log.JSON{"event": "nothing_to_sweep"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	counts, err := service.Sweep(ctx, targets, time.Now(), *dryRun, logger)
	if err != nil {
		logger.Errorj(log.JSON{"event": "sweep_failed", "error": err.Error(), "partial": counts})
		os.Exit(1)
	}
}
