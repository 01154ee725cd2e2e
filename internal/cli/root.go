// Package cli implements the swarmctl operator commands. Every command
// talks to a running swarmd over its HTTP API.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// serverURL is the swarmd endpoint, settable via flag or SWARM_SERVER.
var serverURL string

// tenantID scopes every command to one tenant.
var tenantID string

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "Operator CLI for the swarm control plane",
	Long: `swarmctl manages a marketing-agent swarm through a running swarmd:
spawn and stop sprites, submit work, start projects, and inspect
tenant status and usage.`,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("swarmctl version {{.Version}}\n")

	defaultServer := os.Getenv("SWARM_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "swarmd base URL")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", os.Getenv("SWARM_TENANT"), "tenant id")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func requireTenant(cmd *cobra.Command, args []string) error {
	if tenantID == "" {
		return errMissingTenant
	}
	return nil
}
