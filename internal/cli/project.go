package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/highera/swarm/internal/agent"
)

var (
	projectBrief  string
	projectAgents []string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectStartCmd = &cobra.Command{
	Use:     "start <name>",
	Short:   "Start a project and spawn its crew",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireTenant,
	RunE:    runProjectStart,
}

func init() {
	projectStartCmd.Flags().StringVar(&projectBrief, "brief", "", "project brief")
	projectStartCmd.Flags().StringSliceVar(&projectAgents, "agents", nil, "agent types to spawn (comma-separated)")
	projectCmd.AddCommand(projectStartCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectStart(cmd *cobra.Command, args []string) error {
	agents := make([]agent.Type, 0, len(projectAgents))
	for _, raw := range projectAgents {
		agentType, err := agent.Parse(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		agents = append(agents, agentType)
	}

	projectID, err := newClient(serverURL).startProject(tenantID, args[0], projectBrief, agents)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "started project %s with %d agents\n", projectID, len(agents))
	return nil
}

func printField(out io.Writer, label, value string) {
	fmt.Fprintf(out, "  %-12s %s\n", label+":", value)
}
