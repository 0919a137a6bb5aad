package commands

import (
	"fmt"
	"time"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	queueRunCmd.Flags().Int("batch-size", 0, "How many appointments to process, defaults to the configured batch size.")
	queueRunCmd.Flags().Int("max-retries", 0, "Retry budget passed to the runner, defaults to the configured value.")

	queueCmd.AddCommand(queueRunCmd, queueStatusCmd)
	rootCmd.AddCommand(queueCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Works with the appointments still waiting for VisionPlus.",
}

var queueRunCmd = &cobra.Command{
	Use:   "run [--batch-size n] [--max-retries n]",
	Short: "Syncs a batch of pending or failed appointments, oldest first.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize <= 0 {
			batchSize = a.cfg.Queue.BatchSize
		}
		maxRetries, _ := cmd.Flags().GetInt("max-retries")
		if maxRetries <= 0 {
			maxRetries = a.cfg.Queue.MaxRetries
		}

		summary, err := a.service.Runner().Run(cmd.Context(), batchSize, maxRetries)
		if asJson {
			jsonErr := printJson(summary)
			if err != nil {
				return err
			}
			return jsonErr
		}

		t := newTable()
		t.AppendHeader(table.Row{"Appointment", "Patient", "Success", "Method", "VisionPlus Id", "Error"})
		for _, d := range summary.Details {
			t.AppendRow(table.Row{d.AppointmentId, d.PatientName, d.Success, d.Method, d.VisionPlusId, d.Error})
		}
		t.AppendFooter(table.Row{"", "", "", "Processed", summary.Processed, fmt.Sprintf("%d synced, %d failed", summary.Synced, summary.Failed)})
		t.Render()
		return err
	}),
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows sync status counts and the last day of activity.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		status, err := a.service.QueueStatus(cmd.Context())
		if err != nil {
			return err
		}
		if asJson {
			return printJson(status)
		}

		counts := newTable()
		counts.SetTitle("Sync status")
		for _, s := range db.SyncStatuses() {
			counts.AppendRow(table.Row{s, status.SyncStatus[s]})
		}
		counts.AppendFooter(table.Row{"Total", status.TotalAppointments})
		counts.Render()

		fmt.Printf("needs sync: %d, failed: %d, needs manual entry: %d\n", status.Queue.NeedsSync, status.Queue.FailedSyncs, status.Queue.ManualRequired)

		if len(status.RecentActivity) == 0 {
			return nil
		}
		recent := newTable()
		recent.SetTitle("Last 24 hours")
		recent.AppendHeader(table.Row{"Appointment", "Patient", "Sync status", "VisionPlus Id", "Updated"})
		for _, r := range status.RecentActivity {
			recent.AppendRow(table.Row{r.Id, r.PatientName, r.SyncStatus, r.VisionPlusId, r.UpdatedAt.In(timezone.Location).Format(time.DateTime)})
		}
		recent.Render()
		return nil
	}),
}
