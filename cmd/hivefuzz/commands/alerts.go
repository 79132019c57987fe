package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tpeyrard/hivefuzz/internal/cli/output"
	"github.com/tpeyrard/hivefuzz/pkg/broker"
)

var (
	alertsAPIPort int
	alertsOutput  string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show defect-report progress",
	Long: `Query the running broker's control API and display every alert of the
defect report with its covered/validated state.

Examples:
  hivefuzz alerts
  hivefuzz alerts --output json`,
	RunE: runAlerts,
}

func init() {
	alertsCmd.Flags().IntVar(&alertsAPIPort, "api-port", 8080, "Control API port")
	alertsCmd.Flags().StringVarP(&alertsOutput, "output", "o", "table", "Output format (table|json)")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	var alerts []broker.AlertInfo
	if err := fetchAPI(alertsAPIPort, "/api/v1/alerts", &alerts); err != nil {
		return err
	}

	if alertsOutput == "json" {
		return output.PrintJSON(os.Stdout, alerts)
	}

	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		loc := a.File
		if a.Line > 0 {
			loc = fmt.Sprintf("%s:%d", a.File, a.Line)
		}
		rows = append(rows, []string{
			strconv.Itoa(a.ID),
			a.Kind,
			loc,
			strconv.FormatBool(a.Covered),
			strconv.FormatBool(a.Validated),
		})
	}
	output.PrintTable(os.Stdout, []string{"ID", "Kind", "Location", "Covered", "Validated"}, rows)
	return nil
}
