package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infraCmd = &cobra.Command{
	Use:   "infra",
	Short: "Provision hosting infrastructure only",
	Long: `Creates the resource group, compute plan, and site, and assigns the
system managed identity. External hosting skips this step.`,
	RunE: runInfra,
}

func runInfra(cmd *cobra.Command, args []string) error {
	store, cfg, err := loadProject()
	if err != nil {
		return err
	}
	defer store.Unlock()

	orch, err := newOrchestrator(store, cfg, false)
	if err != nil {
		return err
	}

	res, err := orch.Infra.Provision(cmd.Context(), cfg)
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
		fmt.Println("Infrastructure already provisioned.")
	} else {
		fmt.Println("Infrastructure provisioned.")
	}
	return nil
}
