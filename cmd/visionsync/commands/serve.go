package commands

import (
	"log/slog"
	"time"
	"visionsync-backend/lib/serviceutil"
	"visionsync-backend/lib/telemetry"
	"visionsync-backend/services/vpsync"

	"github.com/spf13/cobra"
)

func init() {
	serveCmd.Flags().Bool("sync-on-start", false, "Run the queue once before serving.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--sync-on-start]",
	Short: "Serves the sync API and runs the queue on its schedule.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		ctx := cmd.Context()
		telemetry.InstrumentPerfStats(ctx, time.Second*30)

		if a.cfg.Queue.Schedule != "" {
			err := a.service.Schedule(ctx, a.cfg.Queue.Schedule, a.cfg.Queue.BatchSize, a.cfg.Queue.MaxRetries)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "queue scheduled", "spec", a.cfg.Queue.Schedule)
		}

		syncOnStart, _ := cmd.Flags().GetBool("sync-on-start")
		if syncOnStart {
			go func() {
				slog.InfoContext(ctx, "running queue on start")
				_, err := a.service.Runner().Run(ctx, a.cfg.Queue.BatchSize, a.cfg.Queue.MaxRetries)
				if err != nil {
					slog.ErrorContext(ctx, "queue run on start", "err", err)
				}
			}()
		}

		return serviceutil.StartHttpServer(ctx, a.cfg.Http.Port, vpsync.NewHandler(a.service).Routes())
	}),
}
