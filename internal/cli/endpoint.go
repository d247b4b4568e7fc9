package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Register the messaging endpoint only",
	Long: `Derives the messaging endpoint from the hosting configuration and
registers it. Unlike in the full pipeline, a failure here exits
non-zero.`,
	RunE: runEndpoint,
}

func runEndpoint(cmd *cobra.Command, args []string) error {
	store, cfg, err := loadProject()
	if err != nil {
		return err
	}
	defer store.Unlock()

	orch, err := newOrchestrator(store, cfg, true)
	if err != nil {
		return err
	}

	res, err := orch.Endpoint.Register(cmd.Context(), cfg)
	if serr := store.Save(cfg); serr != nil {
		fmt.Printf("warning: failed to persist configuration: %v\n", serr)
	}
	if err != nil {
		return err
	}

	if res.AlreadyExisted {
		fmt.Printf("Endpoint %s already registered at %s.\n", res.Name, res.Endpoint)
	} else {
		fmt.Printf("Endpoint %s registered at %s.\n", res.Name, res.Endpoint)
	}
	return nil
}
