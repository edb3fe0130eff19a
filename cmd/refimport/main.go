// Command refimport loads ward counts into the reference tables. The
// input is a JSON object of {district: {local body: ward count}}.
//
// Reference data is write-protected; the import only runs when the
// operator sets MASTER_DATA_LOCK_BYPASS=true for this invocation.
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
	"github.com/iliyamo/campaign-session/internal/model"
	"github.com/iliyamo/campaign-session/internal/repository"
	"github.com/iliyamo/campaign-session/internal/service"
)

func main() {
	file := flag.StringP("file", "f", "", "ward dataset JSON (required)")
	state := flag.StringP("state", "s", "Tamil Nadu", "state the dataset belongs to")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall time limit")
	flag.Parse()

	cfg, err := config.Load()
	logger := logging.New("refimport", cfg.LogLevel)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "config_invalid", "error": err.Error()})
	}
	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.MasterDataLockEnabled && !cfg.MasterDataLockBypass {
		logger.Fatalj(log.JSON{"event": "masterdata_locked", "hint": "set MASTER_DATA_LOCK_BYPASS=true for this run"})
	}

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "open_failed", "file": *file, "error": err.Error()})
	}
	data, err := service.ParseWardDataset(f)
	f.Close()
	if err != nil {
		logger.Fatalj(log.JSON{"event": "parse_failed", "file": *file, "error": err.Error()})
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatalj(log.JSON{"event": "db_open_failed", "error": err.Error()})
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalj(log.JSON{"event": "db_migrate_failed", "error": err.Error()})
	}

	bypassed := 0
	refs := repository.NewReferenceRepo(db,
		repository.LockConfig{Enabled: cfg.MasterDataLockEnabled, Bypass: cfg.MasterDataLockBypass},
		repository.WithLockLogger(logger),
		repository.WithBypassHook(func(model.ReferenceKind, model.Operation) { bypassed++ }),
	)

	sum, err := service.ImportWards(ctx, refs, *state, data)
	if err != nil {
		logger.Errorj(log.JSON{"event": "import_failed", "error": err.Error(), "written": sum})
		os.Exit(1)
	}
	logger.Infoj(log.JSON{
		"event":        "import_done",
		"state":        *state,
		"districts":    sum.Districts,
		"local_bodies": sum.LocalBodies,
		"wards":        sum.Wards,
		"bypassed_ops": bypassed,
	})
}
