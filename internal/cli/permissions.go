package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent365/a365ctl/internal/provision"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Configure delegated permissions only",
	Long: `Grants the delegated scopes for every configured resource. Resources
are independent; one failure does not stop the others.`,
	RunE: runPermissions,
}

func runPermissions(cmd *cobra.Command, args []string) error {
	store, cfg, err := loadProject()
	if err != nil {
		return err
	}
	defer store.Unlock()

	orch, err := newOrchestrator(store, cfg, false)
	if err != nil {
		return err
	}

	failures := 0
	for _, req := range provision.PermissionSets(cfg) {
		warnings, err := orch.Permissions.Configure(cmd.Context(), cfg, req)
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if serr := store.Save(cfg); serr != nil {
			fmt.Printf("warning: failed to persist configuration: %v\n", serr)
		}
		if err != nil {
			failures++
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("Permissions configured for %s.\n", req.ResourceName)
	}

	if failures > 0 {
		return fmt.Errorf("%d resource(s) failed", failures)
	}
	return nil
}
