package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agent365/a365ctl/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter a365.yaml",
	Long:  `Writes a commented configuration template into the current directory.`,
	RunE:  runInit,
}

const configTemplate = `# Agent 365 project configuration.
# Fill in the tenant and subscription, then run 'a365ctl up'.

tenantId: ""
subscriptionId: ""

resourceGroup: my-agents
location: westeurope

# The agent's display name in the directory. Renaming here creates a new
# blueprint on the next run.
displayName: My Agent

# hosting: managed provisions a plan and site; external uses your own host.
hosting: managed
planName: my-agents-plan
planSku: B1
siteName: ""
runtimeStack: NODE|20-lts

# For hosting: external, uncomment and set the HTTPS endpoint.
# externalEndpoint: https://agent.example.com/api/messages

# Downstream resource APIs and the delegated scopes the agent needs.
# Omit entirely to use the defaults (Microsoft Graph and Agent Tooling).
# resources:
#   - name: Microsoft Graph
#     appId: 00000003-0000-0000-c000-000000000000
#     scopes: [User.Read]
`

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(config.StaticFileName); err == nil {
		return fmt.Errorf("%s already exists; not overwriting", config.StaticFileName)
	}
	if err := os.WriteFile(config.StaticFileName, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", config.StaticFileName, err)
	}

	fmt.Printf("Created %s\n", config.StaticFileName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Fill in tenantId, subscriptionId, and siteName")
	fmt.Println("  2. Run 'a365ctl up' to provision everything")
	return nil
}
