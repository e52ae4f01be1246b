// busmon starts a bus from a YAML config and prints its statistics and
// health on an interval. It is the operational skeleton for embedding the
// bus in a service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	agentbus "github.com/meshify/agentbus-go"
	"github.com/meshify/agentbus-go/health"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML bus config")
		interval   = flag.Duration("interval", 5*time.Second, "poll interval")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := []agentbus.Option{agentbus.WithLogger(logger)}
	if *configPath != "" {
		cfg, err := agentbus.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfgOpts, err := cfg.Options()
		if err != nil {
			logger.Error("invalid config", "error", err)
			os.Exit(1)
		}
		opts = append(opts, cfgOpts...)
	}

	bus := agentbus.New(opts...)
	if err := bus.Start(); err != nil {
		logger.Error("failed to start bus", "error", err)
		os.Exit(1)
	}
	defer bus.Stop()

	checker := health.NewBusChecker(bus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			stats := bus.Statistics()
			result := checker.Check(ctx)
			fmt.Printf("[%s] status=%s sent=%d delivered=%d failed=%d retried=%d expired=%d "+
				"lanes=%d/%d dead=%d pendingAcks=%d pendingReplies=%d avg=%s\n",
				time.Now().Format(time.RFC3339),
				result.Status,
				stats.Sent, stats.Delivered, stats.Failed, stats.Retried, stats.Expired,
				stats.DefaultLaneDepth, stats.HighLaneDepth,
				stats.DeadLetterDepth, stats.PendingAcks, stats.PendingReplies,
				stats.AvgProcessing,
			)
		}
	}
}
