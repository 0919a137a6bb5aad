package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(testConnectionCmd, discoverCmd)
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Checks that VisionPlus answers and that the configured account can log in.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		report := a.service.NewOrchestrator().TestConnection(cmd.Context())
		if asJson {
			return printJson(report)
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Base url", a.cfg.VisionPlus.BaseUrl},
			{"Status", report.Status},
			{"Requires auth", report.RequiresAuth},
			{"Authenticated", report.Authenticated},
			{"Error", report.Error},
		})
		t.Render()
		if !report.Success {
			return fmt.Errorf("connection test failed")
		}
		return nil
	}),
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Probes the VisionPlus appointment pages and reports what is reachable.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a app) error {
		report, err := a.service.NewOrchestrator().Discover(cmd.Context())
		if err != nil {
			return err
		}
		if asJson {
			return printJson(report)
		}

		endpoints := newTable()
		endpoints.SetTitle(fmt.Sprintf("%s (authenticated: %v)", report.BaseUrl, report.Authenticated))
		endpoints.AppendHeader(table.Row{"Page", "Path", "Status", "Accessible", "Form", "Title", "Error"})
		for _, e := range report.Endpoints {
			endpoints.AppendRow(table.Row{e.Name, e.Path, e.Status, e.Accessible, e.HasForm, e.PageTitle, e.Error})
		}
		endpoints.Render()

		summary := newTable()
		summary.AppendRows([]table.Row{
			{"Endpoints tested", report.Summary.TotalEndpointsTested},
			{"Accessible", report.Summary.AccessibleEndpoints},
			{"Forms found", report.Summary.FormsFound},
			{"Login page available", report.Summary.LoginPageAvailable},
			{"Can proceed", report.Summary.CanProceedWithIntegration},
		})
		summary.Render()

		for _, r := range report.Recommendations {
			fmt.Println("-", r)
		}
		return nil
	}),
}
