package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/highera/swarm/internal/agent"
)

var spawnProjectID string

var spawnCmd = &cobra.Command{
	Use:     "spawn <agent-type>",
	Short:   "Spawn a sprite of the given agent type",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireTenant,
	RunE:    runSpawn,
}

var stopCmd = &cobra.Command{
	Use:     "stop <sprite-id>",
	Short:   "Stop a sprite",
	Args:    cobra.ExactArgs(1),
	PreRunE: requireTenant,
	RunE:    runStop,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnProjectID, "project", "", "project id to attach the sprite to")
	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(stopCmd)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	agentType, err := agent.Parse(args[0])
	if err != nil {
		return err
	}

	sprite, err := newClient(serverURL).spawnSprite(tenantID, agentType, spawnProjectID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "spawned %s (%s, machine %s)\n", sprite.SpriteID, sprite.AgentType, sprite.MachineID)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	if err := newClient(serverURL).stopSprite(tenantID, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
	return nil
}
