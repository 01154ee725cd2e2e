package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/highera/swarm/internal/agent"
)

var (
	submitInput     string
	submitAgentType string
	submitProjectID string
)

var submitCmd = &cobra.Command{
	Use:   "submit <description>",
	Short: "Submit a task to the swarm",
	Long: `Submits one task. Without --agent, the coordinator infers the agent
type from the task description.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: requireTenant,
	RunE:    runSubmit,
}

var workCmd = &cobra.Command{
	Use:     "work <work-id>",
	Short:   "Show a work item",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireTenant,
	RunE:    runWork,
}

func init() {
	submitCmd.Flags().StringVar(&submitInput, "input", "", "input artifact for the task")
	submitCmd.Flags().StringVar(&submitAgentType, "agent", "", "agent type (inferred when omitted)")
	submitCmd.Flags().StringVar(&submitProjectID, "project", "", "project id")
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(workCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var agentType agent.Type
	if submitAgentType != "" {
		parsed, err := agent.Parse(submitAgentType)
		if err != nil {
			return err
		}
		agentType = parsed
	}

	workID, err := newClient(serverURL).submitWork(tenantID, args[0], submitInput, agentType, submitProjectID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %s\n", workID)
	return nil
}

func runWork(cmd *cobra.Command, args []string) error {
	work, err := newClient(serverURL).getWork(tenantID, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printField(out, "Work", work.WorkID)
	printField(out, "Status", string(work.Status))
	printField(out, "Agent", string(work.AgentType))
	printField(out, "Task", work.Task.Description)
	if work.ParentWorkID != "" {
		printField(out, "Parent", work.ParentWorkID)
	}
	if work.AssignedSprite != "" {
		printField(out, "Sprite", work.AssignedSprite)
	}
	if work.Dispatches > 1 {
		printField(out, "Dispatches", fmt.Sprintf("%d", work.Dispatches))
	}
	if work.Output != "" {
		fmt.Fprintf(out, "\n%s\n", work.Output)
	}
	if work.Error != "" {
		printField(out, "Error", work.Error)
	}
	return nil
}
