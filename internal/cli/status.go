package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show tenant sprite fleet and usage",
	Args:    cobra.NoArgs,
	PreRunE: requireTenant,
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := newClient(serverURL).tenantStatus(tenantID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tenant: %s (plan: %s)\n", status.TenantID, status.Plan)
	fmt.Fprintf(out, "Sprites: %d/%d active, %d spawned this month\n",
		status.Sprites.Active, status.Sprites.Limit, status.Usage.SpritesSpawned)
	fmt.Fprintf(out, "Tokens: %d/%d used this month\n\n",
		status.Usage.TokensUsed, status.Usage.TokenBudget)

	if len(status.Sprites.List) == 0 {
		fmt.Fprintln(out, "No active sprites.")
		return nil
	}

	idWidth := len("SPRITE")
	agentWidth := len("AGENT")
	for _, s := range status.Sprites.List {
		if len(s.SpriteID) > idWidth {
			idWidth = len(s.SpriteID)
		}
		if len(s.AgentType) > agentWidth {
			agentWidth = len(s.AgentType)
		}
	}

	fmt.Fprintf(out, "%-*s  %-*s  %-8s  %-6s  %s\n", idWidth, "SPRITE", agentWidth, "AGENT", "STATUS", "TASKS", "LAST HEARTBEAT")
	fmt.Fprintf(out, "%s  %s  %s  %s  %s\n",
		strings.Repeat("-", idWidth), strings.Repeat("-", agentWidth), "--------", "------", "--------------")
	for _, s := range status.Sprites.List {
		fmt.Fprintf(out, "%-*s  %-*s  %-8s  %-6d  %s\n",
			idWidth, s.SpriteID, agentWidth, string(s.AgentType), string(s.Status),
			s.TasksCompleted, formatHeartbeat(s.LastHeartbeat))
	}
	return nil
}

func formatHeartbeat(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s ago", time.Since(t).Round(time.Second))
}
