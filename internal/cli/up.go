package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var skipInfra bool

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Provision everything",
	Long: `Runs the full pipeline: hosting infrastructure, the agent blueprint,
delegated permissions for each configured resource, and the messaging
endpoint. Safe to re-run; existing resources are reused.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().BoolVar(&skipInfra, "skip-infra", false, "reuse the persisted infrastructure outputs instead of touching the cloud")
}

func runUp(cmd *cobra.Command, args []string) error {
	store, cfg, err := loadProject()
	if err != nil {
		return err
	}
	defer store.Unlock()

	orch, err := newOrchestrator(store, cfg, false)
	if err != nil {
		return err
	}
	orch.Infra.Skip = skipInfra

	res := orch.Run(cmd.Context(), cfg)
	renderResult(os.Stdout, res)
	if res.Failed() {
		return fmt.Errorf("provisioning finished with %d error(s)", len(res.Errors))
	}
	return nil
}
