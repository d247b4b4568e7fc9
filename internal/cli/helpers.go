package cli

import (
	"fmt"
	"os"

	"github.com/agent365/a365ctl/internal/azure"
	"github.com/agent365/a365ctl/internal/config"
	"github.com/agent365/a365ctl/internal/consent"
	"github.com/agent365/a365ctl/internal/graph"
	"github.com/agent365/a365ctl/internal/provision"
	"github.com/agent365/a365ctl/internal/retry"
)

// loadProject opens the configuration store in the working directory and
// takes the lock. The caller must Unlock.
func loadProject() (*config.Store, *config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	store := config.NewStore(wd)
	cfg, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := store.Lock(); err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// newOrchestrator wires the live cloud and directory clients into the
// pipeline. endpointFatal controls how an endpoint failure is reported.
func newOrchestrator(store *config.Store, cfg *config.Config, endpointFatal bool) (*provision.Orchestrator, error) {
	cloud, err := azure.NewClients(cfg.SubscriptionID)
	if err != nil {
		return nil, err
	}
	dir, err := graph.NewClient(cloud.Credential())
	if err != nil {
		return nil, err
	}

	prompter := &consent.BrowserPrompter{NoBrowser: noBrowser, Out: os.Stdout}

	return &provision.Orchestrator{
		Infra: &provision.InfraProvisioner{
			Cloud:  cloud,
			Verify: retry.DefaultPolicy(),
		},
		Blueprint: &provision.BlueprintProvisioner{
			Dir:         dir,
			Prompter:    prompter,
			Persist:     store.Save,
			Visibility:  retry.DefaultPolicy(),
			FIC:         provision.FICRetryPolicy(),
			ConsentPoll: provision.ConsentPollPolicy(),
		},
		Permissions: &provision.PermissionConfigurator{
			Dir:    dir,
			Verify: retry.DefaultPolicy(),
		},
		Endpoint: &provision.EndpointRegistrar{
			Cloud: cloud,
		},
		Persist:       store,
		EndpointFatal: endpointFatal,
	}, nil
}
