package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"visionsync-backend/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	asJson     bool
)

var rootCmd = &cobra.Command{
	Use:   "visionsync",
	Short: "visionsync mirrors website appointments into VisionPlus.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "Path to the config file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging.")
	rootCmd.PersistentFlags().BoolVar(&asJson, "json", false, "Print results as JSON instead of tables.")
}

func ExecuteContext(ctx context.Context) {
	tel, err := telemetry.SetupFromEnv(ctx, "visionsync")
	if err != nil {
		slog.Warn("telemetry disabled", "err", err)
	}

	err = rootCmd.ExecuteContext(ctx)

	shutdownErr := tel.Shutdown(context.WithoutCancel(ctx))
	if shutdownErr != nil {
		slog.Warn("telemetry shutdown", "err", shutdownErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp opens the config and database for the duration of fn.
func withApp(fn func(cmd *cobra.Command, args []string, a app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(configPath)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args, a)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func printJson(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
