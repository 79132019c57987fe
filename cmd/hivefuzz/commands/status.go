package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tpeyrard/hivefuzz/internal/bytesize"
	"github.com/tpeyrard/hivefuzz/internal/cli/output"
	"github.com/tpeyrard/hivefuzz/pkg/broker"
)

var (
	statusAPIPort int
	statusOutput  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show campaign status",
	Long: `Query the running broker's control API and display the campaign
summary and fleet composition.

Examples:
  hivefuzz status
  hivefuzz status --api-port 9080
  hivefuzz status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "Control API port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json)")
}

// apiEnvelope mirrors the control API response wrapper.
type apiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func fetchAPI(port int, path string, out interface{}) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, path))
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode API response: %w", err)
	}
	if env.Error != "" {
		return fmt.Errorf("broker error: %s", env.Error)
	}
	return json.Unmarshal(env.Data, out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var campaign broker.CampaignInfo
	if err := fetchAPI(statusAPIPort, "/api/v1/campaign", &campaign); err != nil {
		return err
	}
	var clients []broker.ClientInfo
	if err := fetchAPI(statusAPIPort, "/api/v1/clients", &clients); err != nil {
		return err
	}

	if statusOutput == "json" {
		return output.PrintJSON(os.Stdout, map[string]interface{}{
			"campaign": campaign,
			"clients":  clients,
		})
	}

	started := "-"
	if campaign.StartedAt != nil {
		started = campaign.StartedAt.Format(time.RFC3339)
	}
	output.SimpleTable(os.Stdout, [][2]string{
		{"State", campaign.State},
		{"Mode", campaign.Mode},
		{"Started", started},
		{"Clients", fmt.Sprintf("%d (%d running)", campaign.Clients, campaign.ClientsRunning)},
		{"Seeds", strconv.Itoa(campaign.Seeds)},
		{"Alerts", fmt.Sprintf("%d (%d covered, %d validated)", campaign.Alerts, campaign.AlertsCovered, campaign.AlertsValidated)},
	})

	if len(clients) == 0 {
		return nil
	}
	fmt.Println()
	rows := make([][]string, 0, len(clients))
	for _, c := range clients {
		engine := c.Engine
		if engine == "" {
			engine = "-"
		}
		coverage := c.Coverage
		if coverage == "" {
			coverage = "-"
		}
		rows = append(rows, []string{
			c.StrID, c.Arch, bytesize.Format(c.Memory), strconv.FormatBool(c.Running), engine, coverage, strconv.Itoa(c.SeedsSent),
		})
	}
	output.PrintTable(os.Stdout, []string{"Client", "Arch", "Memory", "Running", "Engine", "Coverage", "Seeds sent"}, rows)
	return nil
}
