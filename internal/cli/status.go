package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agent365/a365ctl/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what has been provisioned so far",
	Long: `Reads the local configuration record and reports which steps have
completed. Makes no remote calls.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.NewStore(wd).Load()
	if err != nil {
		return err
	}

	fmt.Printf("Agent:   %s\n", cfg.DisplayName)
	fmt.Printf("Hosting: %s\n", cfg.Hosting)
	fmt.Println()

	printStep("infrastructure", cfg.ManagedIdentityPrincipalID != "" || !cfg.ManagedHosting())
	printStep("blueprint", cfg.AppID != "")
	if cfg.AppID != "" {
		fmt.Printf("    appId: %s\n", cfg.AppID)
		fmt.Printf("    secret stored: %v\n", cfg.ClientSecret != "")
	}
	for _, consent := range cfg.Consents {
		printStep("permissions: "+consent.Resource, consent.ConsentGranted)
		if consent.InheritableError != "" {
			fmt.Printf("    inheritable permissions pending: %s\n", consent.InheritableError)
		}
	}
	printStep("endpoint", cfg.MessagingEndpoint != "")
	if cfg.MessagingEndpoint != "" {
		fmt.Printf("    %s\n", cfg.MessagingEndpoint)
	}
	return nil
}

func printStep(name string, done bool) {
	mark := "[ ]"
	if done {
		mark = "[x]"
	}
	fmt.Printf("  %s %s\n", mark, name)
}
