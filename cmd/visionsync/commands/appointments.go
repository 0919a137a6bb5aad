package commands

import (
	"fmt"
	"strings"
	"time"
	"visionsync-backend/lib/timezone"
	"visionsync-backend/services/appointments/db"
	"visionsync-backend/services/vpsync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	updateCmd.Flags().String("date", "", "New appointment date (YYYY-MM-DD).")
	updateCmd.Flags().String("time", "", "New appointment time (HH:MM).")
	updateCmd.Flags().String("branch", "", "New branch.")

	bookCmd.Flags().String("name", "", "Patient name.")
	bookCmd.Flags().String("email", "", "Patient email.")
	bookCmd.Flags().String("phone", "", "Patient phone number.")
	bookCmd.Flags().String("branch", "", "Branch to book at.")
	bookCmd.Flags().String("date", "", "Appointment date (YYYY-MM-DD).")
	bookCmd.Flags().String("time", "", "Appointment time (HH:MM).")
	bookCmd.Flags().String("service", "Eye Test", "Service type.")
	bookCmd.Flags().String("notes", "", "Notes for the practice.")
	for _, name := range []string{"name", "branch", "date", "time"} {
		bookCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(syncCmd, infoCmd, manualCmd, statusUpdateCmd, cancelCmd, updateCmd, bookCmd)
}

func printResult(id string, result vpsync.SyncResult) error {
	if asJson {
		return printJson(result)
	}
	t := newTable()
	t.AppendHeader(table.Row{"Appointment", "Success", "Method", "VisionPlus Id", "Error"})
	t.AppendRow(table.Row{id, result.Success, result.Method, result.VisionPlusId, result.Error})
	t.Render()
	if !result.Success {
		return fmt.Errorf("%s", result.Error)
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", value, timezone.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return date, nil
}

var syncCmd = &cobra.Command{
	Use:   "sync <appointment id>",
	Short: "Pushes an appointment into VisionPlus, trying every strategy in turn.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		result := a.service.NewOrchestrator().SyncAppointment(cmd.Context(), args[0])
		return printResult(args[0], result)
	}),
}

var infoCmd = &cobra.Command{
	Use:   "info <appointment id>",
	Short: "Shows the sync state of an appointment.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		appointment, info, err := a.service.NewOrchestrator().GetSyncInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJson {
			return printJson(map[string]any{"appointment": appointment, "syncInfo": info})
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Patient", appointment.PatientName},
			{"Branch", appointment.Branch},
			{"Date", appointment.AppointmentDate.In(timezone.Location).Format("02/01/2006") + " " + appointment.AppointmentTime},
			{"Status", appointment.Status},
			{"Sync status", appointment.SyncStatus},
			{"VisionPlus id", appointment.VisionPlusId},
			{"Can sync", info.CanSync},
			{"Requires manual entry", info.RequiresManual},
			{"Last updated", info.LastUpdated.In(timezone.Location).Format(time.DateTime)},
		})
		t.Render()
		return nil
	}),
}

var manualCmd = &cobra.Command{
	Use:   "manual <appointment id>",
	Short: "Hands an appointment over to the front desk for manual entry.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		return printResult(args[0], a.service.NewOrchestrator().ManualSync(cmd.Context(), args[0]))
	}),
}

var statusUpdateCmd = &cobra.Command{
	Use:   "status-update <appointment id> <status>",
	Short: "Changes the local status and mirrors it into VisionPlus when relevant.",
	Long: fmt.Sprintf(
		"Changes the local status and mirrors it into VisionPlus when relevant.\n\nStatus is one of %s.",
		strings.Join([]string{
			string(db.StatusPending), string(db.StatusConfirmed), string(db.StatusCancelled),
			string(db.StatusCompleted), string(db.StatusNoShow),
		}, ", "),
	),
	Args: cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		change, err := a.service.ChangeStatus(cmd.Context(), args[0], db.Status(strings.ToUpper(args[1])))
		if err != nil {
			return err
		}
		if asJson {
			return printJson(change)
		}
		if change.SyncResult == nil {
			fmt.Printf("status set to %s, VisionPlus left unchanged\n", change.Status)
			return nil
		}
		return printResult(args[0], *change.SyncResult)
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <appointment id>",
	Short: "Cancels an already synced appointment in VisionPlus.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		return printResult(args[0], a.service.NewOrchestrator().CancelAppointmentInVP(cmd.Context(), args[0]))
	}),
}

var updateCmd = &cobra.Command{
	Use:   "update <appointment id> [--date YYYY-MM-DD] [--time HH:MM] [--branch name]",
	Short: "Changes the date, time or branch of a synced appointment in VisionPlus.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		var changes vpsync.AppointmentChanges
		date, _ := cmd.Flags().GetString("date")
		if date != "" {
			parsed, err := parseDate(date)
			if err != nil {
				return err
			}
			changes.AppointmentDate = &parsed
		}
		changes.AppointmentTime, _ = cmd.Flags().GetString("time")
		changes.Branch, _ = cmd.Flags().GetString("branch")

		return printResult(args[0], a.service.NewOrchestrator().UpdateAppointmentInVP(cmd.Context(), args[0], changes))
	}),
}

var bookCmd = &cobra.Command{
	Use:   "book --name <patient> --branch <branch> --date YYYY-MM-DD --time HH:MM",
	Short: "Records a new appointment and syncs it into VisionPlus.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		flags := cmd.Flags()
		dateValue, _ := flags.GetString("date")
		date, err := parseDate(dateValue)
		if err != nil {
			return err
		}

		var params db.NewAppointment
		params.PatientName, _ = flags.GetString("name")
		params.PatientEmail, _ = flags.GetString("email")
		params.PatientPhone, _ = flags.GetString("phone")
		params.Branch, _ = flags.GetString("branch")
		params.AppointmentTime, _ = flags.GetString("time")
		params.ServiceType, _ = flags.GetString("service")
		params.Notes, _ = flags.GetString("notes")
		params.AppointmentDate = date

		appointment, done, err := a.service.Book(cmd.Context(), params)
		if err != nil {
			return err
		}
		// a CLI run has nothing else to do, so wait for the sync to finish
		return printResult(appointment.Id, <-done)
	}),
}
