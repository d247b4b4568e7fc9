package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var blueprintCmd = &cobra.Command{
	Use:   "blueprint",
	Short: "Provision the agent blueprint identity only",
	Long: `Discovers or creates the blueprint application registration, its
service principal, client secret, and the federated credential binding
it to the site's managed identity. The display name in a365.yaml is the
source of truth; cached ids are refreshed from it.`,
	RunE: runBlueprint,
}

func runBlueprint(cmd *cobra.Command, args []string) error {
	store, cfg, err := loadProject()
	if err != nil {
		return err
	}
	defer store.Unlock()

	orch, err := newOrchestrator(store, cfg, false)
	if err != nil {
		return err
	}

	res, err := orch.Blueprint.Provision(cmd.Context(), cfg)
	for _, w := range res.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if serr := store.Save(cfg); serr != nil {
		fmt.Printf("warning: failed to persist configuration: %v\n", serr)
	}
	if err != nil {
		return err
	}

	if res.AlreadyExisted {
		fmt.Printf("Blueprint already provisioned (appId %s).\n", res.AppID)
	} else {
		fmt.Printf("Blueprint provisioned (appId %s).\n", res.AppID)
	}
	if res.FICSkipped {
		fmt.Println("Federated credential skipped: no managed identity to bind.")
	}
	return nil
}
