package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/highera/swarm/internal/agent"
	"github.com/highera/swarm/internal/state"
)

var (
	tenantName    string
	tenantPlan    string
	tenantAgents  []string
	tenantSprites int
	tenantBudget  int64

	brandVoice      string
	brandTone       string
	brandAudience   string
	brandGuidelines string
	brandKeywords   []string
	brandAvoid      []string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenant configuration",
}

var tenantSetCmd = &cobra.Command{
	Use:     "set",
	Short:   "Create or update the tenant's plan configuration",
	Args:    cobra.NoArgs,
	PreRunE: requireTenant,
	RunE:    runTenantSet,
}

var brandSetCmd = &cobra.Command{
	Use:     "brand",
	Short:   "Set the tenant's brand context",
	Args:    cobra.NoArgs,
	PreRunE: requireTenant,
	RunE:    runBrandSet,
}

func init() {
	tenantSetCmd.Flags().StringVar(&tenantName, "name", "", "display name")
	tenantSetCmd.Flags().StringVar(&tenantPlan, "plan", "starter", "plan name (starter, growth, enterprise)")
	tenantSetCmd.Flags().StringSliceVar(&tenantAgents, "agents", nil, "enabled agent types (defaults to the plan's)")
	tenantSetCmd.Flags().IntVar(&tenantSprites, "max-sprites", 0, "override max concurrent sprites")
	tenantSetCmd.Flags().Int64Var(&tenantBudget, "token-budget", 0, "override monthly token budget")

	brandSetCmd.Flags().StringVar(&brandVoice, "voice", "", "brand voice")
	brandSetCmd.Flags().StringVar(&brandTone, "tone", "", "brand tone")
	brandSetCmd.Flags().StringVar(&brandAudience, "audience", "", "target audience")
	brandSetCmd.Flags().StringVar(&brandGuidelines, "guidelines", "", "writing guidelines")
	brandSetCmd.Flags().StringSliceVar(&brandKeywords, "keywords", nil, "keywords to favor")
	brandSetCmd.Flags().StringSliceVar(&brandAvoid, "avoid", nil, "words to avoid")

	tenantCmd.AddCommand(tenantSetCmd)
	tenantCmd.AddCommand(brandSetCmd)
	rootCmd.AddCommand(tenantCmd)
}

func runTenantSet(cmd *cobra.Command, args []string) error {
	agents := make([]agent.Type, 0, len(tenantAgents))
	for _, raw := range tenantAgents {
		agentType, err := agent.Parse(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		agents = append(agents, agentType)
	}

	err := newClient(serverURL).putTenant(&state.TenantConfig{
		TenantID:             tenantID,
		Name:                 tenantName,
		Plan:                 tenantPlan,
		EnabledAgents:        agents,
		MaxConcurrentSprites: tenantSprites,
		MonthlyTokenBudget:   tenantBudget,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tenant %s configured (plan %s)\n", tenantID, tenantPlan)
	return nil
}

func runBrandSet(cmd *cobra.Command, args []string) error {
	err := newClient(serverURL).putBrand(tenantID, &state.BrandContext{
		Voice:      brandVoice,
		Tone:       brandTone,
		Audience:   brandAudience,
		Guidelines: brandGuidelines,
		Keywords:   brandKeywords,
		Avoid:      brandAvoid,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "brand context set for %s\n", tenantID)
	return nil
}
