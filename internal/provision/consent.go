package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agent365/a365ctl/internal/config"
	"github.com/agent365/a365ctl/internal/logging"
	"github.com/agent365/a365ctl/internal/retry"
)

// PermissionRequest describes one downstream resource API and the delegated
// scopes the agent needs on it.
type PermissionRequest struct {
	ResourceName  string
	ResourceAppID string
	Scopes        []string
	// RegisterInManifest also records the scopes in the application's
	// visible manifest.
	RegisterInManifest bool
	// SetInheritable also writes the inheritable permission record.
	SetInheritable bool
}

// PermissionConfigurator grants delegated permissions between the blueprint
// and one downstream resource API. Whether a resource's failure aborts the
// whole pipeline is the orchestrator's decision, not this type's.
type PermissionConfigurator struct {
	Dir DirectoryAPI
	// Verify bounds inheritable-permission verification.
	Verify retry.Policy
}

// Configure resolves both service principals, creates or updates the
// delegated grant, optionally sets the inheritable record, and updates the
// resource consent record in cfg. A grant failure is fatal for this
// resource; inheritable verification failure is only a warning.
func (p *PermissionConfigurator) Configure(ctx context.Context, cfg *config.Config, req PermissionRequest) ([]string, error) {
	var warnings []string

	if cfg.ServicePrincipalID == "" {
		return nil, &ConsentError{Resource: req.ResourceName, Err: fmt.Errorf("blueprint service principal is not provisioned; run `a365ctl blueprint` first")}
	}

	resourceSP, err := p.Dir.GetServicePrincipal(ctx, req.ResourceAppID)
	if err != nil {
		return nil, &ConsentError{Resource: req.ResourceName, Err: fmt.Errorf("resource principal lookup failed: %w", err)}
	}
	if resourceSP == nil {
		// First use of this resource API in the tenant.
		resourceSP, err = p.Dir.CreateServicePrincipal(ctx, req.ResourceAppID)
		if err != nil {
			return nil, &ConsentError{Resource: req.ResourceName, Err: fmt.Errorf("resource principal creation failed: %w", err)}
		}
		logging.Info("created resource service principal", "resource", req.ResourceName, "id", resourceSP.ID)
	}

	if req.RegisterInManifest {
		if err := p.Dir.RegisterRequiredScopes(ctx, cfg.AppObjectID, req.ResourceAppID, req.Scopes); err != nil {
			warnings = append(warnings, fmt.Sprintf("could not register %s scopes in the application manifest: %v", req.ResourceName, err))
		}
	}

	granted, err := p.Dir.GrantedScopes(ctx, cfg.ServicePrincipalID, resourceSP.ID)
	if err != nil {
		return warnings, &ConsentError{Resource: req.ResourceName, Err: fmt.Errorf("grant lookup failed: %w", err)}
	}

	missing := MissingScopes(granted, req.Scopes)
	if len(missing) == 0 {
		logging.Info("delegated grant already covers requested scopes", "resource", req.ResourceName)
	} else {
		want := unionScopes(granted, req.Scopes)
		if err := p.Dir.GrantScopes(ctx, cfg.ServicePrincipalID, resourceSP.ID, want); err != nil {
			var authErr *AuthorizationError
			if errors.As(err, &authErr) {
				return warnings, &ConsentError{Resource: req.ResourceName, Err: err}
			}
			return warnings, &ConsentError{Resource: req.ResourceName, Err: fmt.Errorf("grant creation failed: %w", err)}
		}
		logging.Info("granted delegated permissions", "resource", req.ResourceName, "scopes", strings.Join(missing, " "))
	}

	rec := cfg.Consent(req.ResourceName, req.ResourceAppID)
	rec.Scopes = req.Scopes
	rec.ConsentGranted = true
	now := time.Now().UTC()
	rec.ConsentTime = &now

	if req.SetInheritable {
		p.configureInheritable(ctx, cfg, req, rec, &warnings)
	}

	return warnings, nil
}

func (p *PermissionConfigurator) configureInheritable(ctx context.Context, cfg *config.Config, req PermissionRequest, rec *config.ResourceConsent, warnings *[]string) {
	if err := p.Dir.SetInheritablePermissions(ctx, cfg.AppObjectID, req.ResourceAppID, req.Scopes); err != nil {
		rec.InheritableError = err.Error()
		*warnings = append(*warnings, fmt.Sprintf("could not configure inheritable permissions on %s: %v", req.ResourceName, err))
		return
	}

	_, rerr := retry.Do(ctx, p.Verify, func(ctx context.Context) retry.Attempt[struct{}] {
		got, err := p.Dir.InheritableScopes(ctx, cfg.AppObjectID, req.ResourceAppID)
		if err != nil {
			return retry.Fail[struct{}](err)
		}
		if len(MissingScopes(got, req.Scopes)) > 0 {
			return retry.Again[struct{}](fmt.Errorf("inheritable permissions not visible yet"))
		}
		return retry.Ok(struct{}{})
	}, retry.ShouldRetry[struct{}])
	if rerr != nil {
		rec.InheritableError = rerr.Error()
		*warnings = append(*warnings, fmt.Sprintf("inheritable permission verification failed on %s: %v", req.ResourceName, rerr))
		return
	}
	rec.InheritableConfigured = true
	rec.InheritableError = ""
}

// MissingScopes returns the required scopes not covered by granted,
// case-insensitively and regardless of order. The returned scopes keep the
// casing they were requested with.
func MissingScopes(granted, required []string) []string {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	var missing []string
	for _, s := range required {
		if !have[strings.ToLower(strings.TrimSpace(s))] {
			missing = append(missing, s)
		}
	}
	return missing
}

// unionScopes merges granted and required preserving existing grants, so an
// update never narrows a grant.
func unionScopes(granted, required []string) []string {
	seen := make(map[string]bool, len(granted)+len(required))
	var out []string
	for _, s := range append(append([]string{}, granted...), required...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
