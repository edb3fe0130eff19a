// Command auditconsumer drains the security-event queue into an
// append-only log file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	flag "github.com/spf13/pflag"

	"github.com/iliyamo/campaign-session/internal/config"
	"github.com/iliyamo/campaign-session/internal/logging"
	"github.com/iliyamo/campaign-session/internal/queue"
)

func main() {
	dir := flag.String("dir", "logs", "directory holding security.log")
	flag.Parse()

	// Only the broker URL and log level are needed; the DB settings this
	// process never uses may be absent.
	cfg, _ := config.Load()
	logger := logging.New("auditconsumer", cfg.LogLevel)
	if cfg.RabbitURL == "" {
		logger.Fatalj(log.JSON{"event": "config_invalid", "error": "RABBITMQ_URL is not set"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive := queue.Archive{Dir: *dir}
	logger.Infoj(log.JSON{"event": "consuming", "queue": queue.SecurityEventsQueue, "file": archive.Path()})
	if err := queue.Consume(ctx, cfg.RabbitURL, archive, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorj(log.JSON{"event": "consumer_stopped", "error": err.Error()})
		os.Exit(1)
	}
}
