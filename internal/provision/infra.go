package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/agent365/a365ctl/internal/config"
	"github.com/agent365/a365ctl/internal/logging"
	"github.com/agent365/a365ctl/internal/retry"
)

// InfraProvisioner creates the hosting resources in dependency order. Every
// sub-step is independently idempotent: a re-run against existing resources
// reports already-existed instead of failing.
type InfraProvisioner struct {
	Cloud CloudAPI
	// Verify bounds the existence re-checks that follow a create call.
	Verify retry.Policy
	// Skip loads the persisted managed identity instead of touching the
	// cloud, for runs that resume from a later step.
	Skip bool
}

// InfraResult is what downstream steps consume.
type InfraResult struct {
	// PrincipalID is the managed identity's principal id. Empty is valid in
	// external-hosting mode with no managed identity.
	PrincipalID string
	// AlreadyExisted is true when every sub-resource was found rather than
	// created.
	AlreadyExisted bool
	Warnings       []string
}

// Provision runs the infrastructure step against cfg and records its outputs
// back into it.
func (p *InfraProvisioner) Provision(ctx context.Context, cfg *config.Config) (InfraResult, error) {
	if p.Skip || !cfg.ManagedHosting() {
		// A previously persisted principal id may exist from an earlier
		// managed run; its absence is valid for pure external hosting.
		logging.Debug("skipping infrastructure", "principalId", cfg.ManagedIdentityPrincipalID)
		return InfraResult{
			PrincipalID:    cfg.ManagedIdentityPrincipalID,
			AlreadyExisted: true,
		}, nil
	}

	res := InfraResult{AlreadyExisted: true}

	if err := p.Cloud.SetSubscription(ctx, cfg.SubscriptionID); err != nil {
		// Subsequent calls may still succeed with an implicit default.
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not set subscription context %s: %v", cfg.SubscriptionID, err))
	}

	if err := p.ensureResourceGroup(ctx, cfg, &res); err != nil {
		return res, err
	}
	if err := p.ensurePlan(ctx, cfg, &res); err != nil {
		return res, err
	}
	if err := p.ensureSite(ctx, cfg, &res); err != nil {
		return res, err
	}

	principalID, err := p.Cloud.AssignManagedIdentity(ctx, cfg.ResourceGroup, cfg.SiteName)
	if errors.Is(err, ErrConflict) {
		// The site already carries an identity; read its principal id back.
		logging.Info("managed identity already assigned", "site", cfg.SiteName)
		principalID, err = p.Cloud.ManagedIdentityPrincipalID(ctx, cfg.ResourceGroup, cfg.SiteName)
	}
	if err != nil {
		return res, fmt.Errorf("failed to assign managed identity on %s: %w", cfg.SiteName, err)
	}
	cfg.ManagedIdentityPrincipalID = principalID
	res.PrincipalID = principalID

	return res, nil
}

func (p *InfraProvisioner) ensureResourceGroup(ctx context.Context, cfg *config.Config, res *InfraResult) error {
	exists, err := p.Cloud.ResourceGroupExists(ctx, cfg.ResourceGroup)
	if err != nil {
		return fmt.Errorf("failed to check resource group %s: %w", cfg.ResourceGroup, err)
	}
	if exists {
		logging.Info("resource group already exists", "name", cfg.ResourceGroup)
		return nil
	}
	if err := p.Cloud.CreateResourceGroup(ctx, cfg.ResourceGroup, cfg.Location); err != nil {
		return fmt.Errorf("failed to create resource group %s: %w", cfg.ResourceGroup, err)
	}
	logging.Info("created resource group", "name", cfg.ResourceGroup)
	res.AlreadyExisted = false
	return nil
}

func (p *InfraProvisioner) ensurePlan(ctx context.Context, cfg *config.Config, res *InfraResult) error {
	exists, err := p.Cloud.PlanExists(ctx, cfg.ResourceGroup, cfg.PlanName)
	if err != nil {
		return &PlanError{Plan: cfg.PlanName, Location: cfg.Location, SKU: cfg.PlanSKU, Err: err}
	}
	if exists {
		logging.Info("compute plan already exists", "name", cfg.PlanName)
		return nil
	}

	if err := p.Cloud.CreatePlan(ctx, cfg.ResourceGroup, cfg.PlanName, cfg.Location, cfg.PlanSKU); err != nil {
		return &PlanError{Plan: cfg.PlanName, Location: cfg.Location, SKU: cfg.PlanSKU, Err: err}
	}
	res.AlreadyExisted = false
	logging.Info("created compute plan", "name", cfg.PlanName, "sku", cfg.PlanSKU)

	// The existence check may lag creation.
	if err := p.verifyVisible(ctx, fmt.Sprintf("compute plan %s", cfg.PlanName), func(ctx context.Context) (bool, error) {
		return p.Cloud.PlanExists(ctx, cfg.ResourceGroup, cfg.PlanName)
	}); err != nil {
		return &PlanError{Plan: cfg.PlanName, Location: cfg.Location, SKU: cfg.PlanSKU, Err: err}
	}
	return nil
}

func (p *InfraProvisioner) ensureSite(ctx context.Context, cfg *config.Config, res *InfraResult) error {
	exists, err := p.Cloud.SiteExists(ctx, cfg.ResourceGroup, cfg.SiteName)
	if err != nil {
		return fmt.Errorf("failed to check compute instance %s: %w", cfg.SiteName, err)
	}
	if exists {
		logging.Info("compute instance already exists", "name", cfg.SiteName)
		// Re-point the runtime stack at the detected platform; the config
		// may now reference a different project.
		if err := p.Cloud.SetSiteRuntime(ctx, cfg.ResourceGroup, cfg.SiteName, cfg.RuntimeStack); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not update runtime stack on %s: %v", cfg.SiteName, err))
		}
		return nil
	}

	if err := p.Cloud.CreateSite(ctx, cfg.ResourceGroup, cfg.SiteName, cfg.Location, cfg.PlanName, cfg.RuntimeStack); err != nil {
		var nameTaken *NameTakenError
		var authErr *AuthorizationError
		if errors.As(err, &nameTaken) || errors.As(err, &authErr) {
			return err
		}
		return fmt.Errorf("failed to create compute instance %s: %w", cfg.SiteName, err)
	}
	res.AlreadyExisted = false
	logging.Info("created compute instance", "name", cfg.SiteName, "runtime", cfg.RuntimeStack)

	return p.verifyVisible(ctx, fmt.Sprintf("compute instance %s", cfg.SiteName), func(ctx context.Context) (bool, error) {
		return p.Cloud.SiteExists(ctx, cfg.ResourceGroup, cfg.SiteName)
	})
}

// verifyVisible re-probes an existence check until it observes the resource
// or the retry ceiling is hit.
func (p *InfraProvisioner) verifyVisible(ctx context.Context, resource string, probe func(context.Context) (bool, error)) error {
	attempt, err := retry.Do(ctx, p.Verify, func(ctx context.Context) retry.Attempt[bool] {
		exists, err := probe(ctx)
		switch {
		case err != nil:
			return retry.Fail[bool](err)
		case !exists:
			return retry.Again[bool](ErrNotFound)
		default:
			return retry.Ok(true)
		}
	}, retry.ShouldRetry[bool])

	if errors.Is(err, retry.ErrRetriesExhausted) {
		return &PropagationTimeoutError{Resource: resource, Attempts: p.Verify.MaxRetries + 1}
	}
	if err != nil {
		return err
	}
	if attempt.Outcome == retry.Terminal {
		return fmt.Errorf("failed to verify %s: %w", resource, attempt.Err)
	}
	return nil
}
