package service

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
)

// ExpiredStore is a table that can drop rows past their expiry
// (repository.TokenRepo, repository.DeviceRepo).
type ExpiredStore interface {
	CountExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepTarget names one store to sweep.
type SweepTarget struct {
	Name  string
	Store ExpiredStore
}

// Sweep deletes expired rows from every target and returns the per-target
// counts. With dryRun it only counts. It is idempotent and safe to run
// alongside live traffic.
func Sweep(ctx context.Context, targets []SweepTarget, now time.Time, dryRun bool, logger Logger) (map[string]int64, error) {
	out := make(map[string]int64, len(targets))
	for _, t := range targets {
		var (
			n   int64
			err error
		)
		if dryRun {
			n, err = t.Store.CountExpired(ctx, now)
		} else {
			n, err = t.Store.DeleteExpired(ctx, now)
		}
		if err != nil {
			return out, fmt.Errorf("sweeping %s: %w", t.Name, err)
		}
		out[t.Name] = n
		logger.Infoj(log.JSON{"event": "sweep", "target": t.Name, "rows": n, "dry_run": dryRun, "cutoff": now.UTC().Format(time.RFC3339)})
	}
	return out, nil
}
