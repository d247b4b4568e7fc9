package provision

import (
	"context"
	"fmt"

	"github.com/agent365/a365ctl/internal/config"
	"github.com/agent365/a365ctl/internal/logging"
)

// DefaultPermissionSets are the downstream resource APIs configured when the
// static config does not list any.
var DefaultPermissionSets = []PermissionRequest{
	{
		ResourceName:       "Microsoft Graph",
		ResourceAppID:      GraphAppID,
		Scopes:             []string{"User.Read"},
		RegisterInManifest: true,
		SetInheritable:     true,
	},
	{
		ResourceName:   "Agent Tooling",
		ResourceAppID:  "ab3be6b7-f5df-413d-ac2d-abf1e3fd9c0b",
		Scopes:         []string{"Tooling.Execute"},
		SetInheritable: true,
	},
}

// Orchestrator drives the fixed step sequence and aggregates the result.
// After every step, regardless of outcome, the configuration record is
// persisted so a resumed run sees the latest state.
type Orchestrator struct {
	Infra       *InfraProvisioner
	Blueprint   *BlueprintProvisioner
	Permissions *PermissionConfigurator
	Endpoint    *EndpointRegistrar
	Persist     ConfigPersister

	// EndpointFatal controls whether an endpoint registration failure aborts
	// with an error (standalone invocation) or records a warning (full
	// pipeline).
	EndpointFatal bool
}

// PermissionSets resolves the downstream resources for a configuration.
func PermissionSets(cfg *config.Config) []PermissionRequest {
	if len(cfg.Resources) == 0 {
		return DefaultPermissionSets
	}
	sets := make([]PermissionRequest, 0, len(cfg.Resources))
	for _, r := range cfg.Resources {
		sets = append(sets, PermissionRequest{
			ResourceName:       r.Name,
			ResourceAppID:      r.AppID,
			Scopes:             r.Scopes,
			RegisterInManifest: true,
			SetInheritable:     true,
		})
	}
	return sets
}

// Run executes the full pipeline: infrastructure, blueprint, one permission
// step per downstream resource (best-effort), endpoint. Infrastructure and
// blueprint failures are fatal; a single resource's permission failure only
// fails that step.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config) *Result {
	res := &Result{}

	infra, err := o.Infra.Provision(ctx, cfg)
	for _, w := range infra.Warnings {
		res.AddWarning(w)
	}
	o.save(cfg, res)
	if err != nil {
		res.AddError(err.Error())
		res.Record(StepResult{Name: StepInfra, Status: StatusFailed, Detail: err.Error(), Remedy: "a365ctl infra"})
		res.Record(StepResult{Name: StepBlueprint, Status: StatusSkipped})
		o.skipRemaining(cfg, res)
		return res
	}
	res.Record(StepResult{Name: StepInfra, Status: StatusOK, AlreadyExisted: infra.AlreadyExisted})

	bp, err := o.Blueprint.Provision(ctx, cfg)
	for _, w := range bp.Warnings {
		res.AddWarning(w)
	}
	o.save(cfg, res)
	if err != nil {
		res.AddError(err.Error())
		res.Record(StepResult{Name: StepBlueprint, Status: StatusFailed, Detail: err.Error(), Remedy: "a365ctl blueprint"})
		o.skipRemaining(cfg, res)
		return res
	}
	res.Record(StepResult{Name: StepBlueprint, Status: StatusOK, AlreadyExisted: bp.AlreadyExisted})

	// Permission steps are independent of each other: one resource's
	// failure must not abort the others or the endpoint step.
	for _, req := range PermissionSets(cfg) {
		stepName := permissionStepName(req.ResourceName)
		warnings, err := o.Permissions.Configure(ctx, cfg, req)
		for _, w := range warnings {
			res.AddWarning(w)
		}
		o.save(cfg, res)
		if err != nil {
			res.AddError(err.Error())
			res.Record(StepResult{Name: stepName, Status: StatusFailed, Detail: err.Error(), Remedy: "a365ctl permissions"})
			continue
		}
		res.Record(StepResult{Name: stepName, Status: StatusOK})
	}

	ep, err := o.Endpoint.Register(ctx, cfg)
	o.save(cfg, res)
	if err != nil {
		if o.EndpointFatal {
			res.AddError(err.Error())
			res.Record(StepResult{Name: StepEndpoint, Status: StatusFailed, Detail: err.Error(), Remedy: "a365ctl endpoint"})
		} else {
			res.AddWarning(err.Error())
			res.Record(StepResult{Name: StepEndpoint, Status: StatusWarn, Detail: err.Error(), Remedy: "a365ctl endpoint"})
		}
		return res
	}
	res.Record(StepResult{Name: StepEndpoint, Status: StatusOK, AlreadyExisted: ep.AlreadyExisted})

	return res
}

// save persists the configuration after a step; a persistence failure is a
// warning, never an abort, because the in-memory record is still correct for
// the remaining steps.
func (o *Orchestrator) save(cfg *config.Config, res *Result) {
	if o.Persist == nil {
		return
	}
	if err := o.Persist.Save(cfg); err != nil {
		logging.Error("failed to persist configuration", "error", err)
		res.AddWarning(fmt.Sprintf("failed to persist configuration: %v", err))
	}
}

func (o *Orchestrator) skipRemaining(cfg *config.Config, res *Result) {
	for _, req := range PermissionSets(cfg) {
		res.Record(StepResult{Name: permissionStepName(req.ResourceName), Status: StatusSkipped})
	}
	res.Record(StepResult{Name: StepEndpoint, Status: StatusSkipped})
}

func permissionStepName(resource string) string {
	return "permissions:" + resource
}
