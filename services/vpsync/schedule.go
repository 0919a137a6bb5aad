package vpsync

import (
	"context"
	"fmt"
	"log/slog"
	"visionsync-backend/lib/timezone"

	"github.com/robfig/cron/v3"
)

type cronLogger struct{}

func (cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(l.formatParams(keysAndValues), "err", err)...)
}

// Schedule runs the queue on a cron spec (Harare time) until ctx is done.
// A run still in progress when the next one is due makes that one skip.
func (s Service) Schedule(ctx context.Context, spec string, batchSize, maxRetries int) error {
	logger := cronLogger{}
	scheduler := cron.New(
		cron.WithLocation(timezone.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err := scheduler.AddFunc(spec, func() {
		summary, err := s.Runner().Run(ctx, batchSize, maxRetries)
		if err != nil {
			slog.ErrorContext(ctx, "scheduled queue run", "err", err)
			return
		}
		slog.InfoContext(ctx, "scheduled queue run finished",
			"processed", summary.Processed,
			"synced", summary.Synced,
			"failed", summary.Failed,
		)
	})
	if err != nil {
		return fmt.Errorf("invalid queue schedule %q: %w", spec, err)
	}

	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	return nil
}
