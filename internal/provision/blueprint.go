package provision

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agent365/a365ctl/internal/config"
	"github.com/agent365/a365ctl/internal/logging"
	"github.com/agent365/a365ctl/internal/retry"
)

// Well-known identifiers for the blueprint registration.
const (
	// SignInAudienceMultiOrg allows sign-in from any work or school tenant.
	SignInAudienceMultiOrg = "AzureADMultipleOrgs"
	// TokenExchangeAudience is the fixed federated credential audience.
	TokenExchangeAudience = "api://AzureADTokenExchange"
	// GraphAppID is the well-known application id of Microsoft Graph.
	GraphAppID = "00000003-0000-0000-c000-000000000000"

	consentRedirectURI = "https://login.microsoftonline.com/common/oauth2/nativeclient"
	ficNameSuffix      = "-managed-identity-fic"
)

// DefaultConsentScopes are the delegated scopes the blueprint itself needs
// before any downstream resource is configured.
var DefaultConsentScopes = []string{"User.Read", "offline_access"}

// FICRetryPolicy covers the propagation window between application creation
// and the directory accepting federated credentials on it.
func FICRetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// ConsentPollPolicy paces the wait for the operator to grant admin consent
// in the browser.
func ConsentPollPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 60, BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Second}
}

// BlueprintProvisioner discovers or creates the application identity
// registration, its service principal, client secret, and the federated
// credential binding it to the managed identity.
type BlueprintProvisioner struct {
	Dir      DirectoryAPI
	Prompter ConsentPrompter
	// Persist saves the configuration record mid-step so a crash after the
	// secret is minted cannot lose it. May be nil in tests.
	Persist func(*config.Config) error

	// Visibility bounds read-after-create checks on the new application.
	Visibility retry.Policy
	// FIC bounds federated credential creation retries. Propagation delay is
	// common here, so the ceiling is high and the base delay short.
	FIC retry.Policy
	// ConsentPoll bounds the wait for the admin grant to appear.
	ConsentPoll retry.Policy

	// ConsentScopes are the delegated scopes requested during the blueprint
	// consent step. DefaultConsentScopes when empty.
	ConsentScopes []string
}

// BlueprintResult carries the identifiers every later step consumes.
type BlueprintResult struct {
	AppID              string
	ObjectID           string
	ServicePrincipalID string
	AlreadyExisted     bool
	// FICSkipped reports that the federated credential step did not apply
	// (external hosting or no managed identity). Not a failure.
	FICSkipped bool
	Warnings   []string
}

// Provision runs the blueprint state machine: discover by display name, then
// either configure the existing registration or create a new one, then the
// common path (federated credential, admin consent, client secret).
func (p *BlueprintProvisioner) Provision(ctx context.Context, cfg *config.Config) (BlueprintResult, error) {
	var res BlueprintResult

	// The display name in the static config is the source of truth: a
	// changed name must be detected here, never masked by a cached id.
	app, err := p.Dir.FindApplicationByName(ctx, cfg.DisplayName)
	if err != nil {
		return res, &BlueprintError{DisplayName: cfg.DisplayName, Err: fmt.Errorf("discovery failed: %w", err)}
	}

	if app == nil {
		app, err = p.create(ctx, cfg, &res)
		if err != nil {
			return res, &BlueprintError{DisplayName: cfg.DisplayName, Err: err}
		}
	} else {
		logging.Info("blueprint already registered", "displayName", cfg.DisplayName, "appId", app.AppID)
		res.AlreadyExisted = true
	}

	res.AppID = app.AppID
	res.ObjectID = app.ObjectID
	cfg.AppID = app.AppID
	cfg.AppObjectID = app.ObjectID

	sp, err := p.ensureServicePrincipal(ctx, app.AppID)
	if err != nil {
		return res, &BlueprintError{DisplayName: cfg.DisplayName, Err: err}
	}
	res.ServicePrincipalID = sp.ID
	cfg.ServicePrincipalID = sp.ID

	if err := p.ensureFederatedCredential(ctx, cfg, &res); err != nil {
		return res, &BlueprintError{DisplayName: cfg.DisplayName, Err: err}
	}

	if err := p.ensureConsent(ctx, cfg, &res); err != nil {
		return res, &BlueprintError{DisplayName: cfg.DisplayName, Err: err}
	}

	if err := p.ensureClientSecret(ctx, cfg, &res); err != nil {
		return res, &BlueprintError{DisplayName: cfg.DisplayName, Err: err}
	}

	return res, nil
}

// create registers a new application, waits for it to become visible, and
// patches in its identifier URI.
func (p *BlueprintProvisioner) create(ctx context.Context, cfg *config.Config, res *BlueprintResult) (*Application, error) {
	params := CreateApplicationParams{
		DisplayName:    cfg.DisplayName,
		SignInAudience: SignInAudienceMultiOrg,
		AgentBlueprint: true,
	}

	if userID, err := p.Dir.CurrentUserID(ctx); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not resolve current user for sponsor binding: %v", err))
	} else {
		params.SponsorUserID = userID
	}

	app, err := p.Dir.CreateApplication(ctx, params)
	if errors.Is(err, ErrSponsorRejected) && params.SponsorUserID != "" {
		// One retry with the field omitted, never a second.
		res.Warnings = append(res.Warnings, fmt.Sprintf("directory rejected sponsor binding, creating without it: %v", err))
		params.SponsorUserID = ""
		app, err = p.Dir.CreateApplication(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("creation failed: %w", err)
	}
	logging.Info("created blueprint registration", "displayName", cfg.DisplayName, "appId", app.AppID)

	// Read-after-create may lag; wait for the object to become visible
	// before patching it.
	attempt, rerr := retry.Do(ctx, p.Visibility, func(ctx context.Context) retry.Attempt[*Application] {
		got, err := p.Dir.GetApplication(ctx, app.ObjectID)
		switch {
		case errors.Is(err, ErrNotFound):
			return retry.Again[*Application](err)
		case err != nil:
			return retry.Fail[*Application](err)
		default:
			return retry.Ok(got)
		}
	}, retry.ShouldRetry[*Application])
	if errors.Is(rerr, retry.ErrRetriesExhausted) {
		return nil, &PropagationTimeoutError{Resource: fmt.Sprintf("application %s", app.AppID), Attempts: p.Visibility.MaxRetries + 1}
	}
	if rerr != nil {
		return nil, rerr
	}
	if attempt.Outcome == retry.Terminal {
		return nil, fmt.Errorf("read-after-create failed: %w", attempt.Err)
	}

	if err := p.Dir.SetIdentifierURI(ctx, app.ObjectID, "api://"+app.AppID); err != nil {
		return nil, fmt.Errorf("failed to set identifier URI: %w", err)
	}
	return app, nil
}

func (p *BlueprintProvisioner) ensureServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error) {
	sp, err := p.Dir.GetServicePrincipal(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("service principal lookup failed: %w", err)
	}
	if sp != nil {
		return sp, nil
	}

	// The application may not yet be visible to the service principal
	// endpoint; retry creation on not-found.
	attempt, rerr := retry.Do(ctx, p.FIC, func(ctx context.Context) retry.Attempt[*ServicePrincipal] {
		sp, err := p.Dir.CreateServicePrincipal(ctx, appID)
		switch {
		case errors.Is(err, ErrNotFound):
			return retry.Again[*ServicePrincipal](err)
		case err != nil:
			return retry.Fail[*ServicePrincipal](err)
		default:
			return retry.Ok(sp)
		}
	}, retry.ShouldRetry[*ServicePrincipal])
	if errors.Is(rerr, retry.ErrRetriesExhausted) {
		return nil, &PropagationTimeoutError{Resource: fmt.Sprintf("service principal for %s", appID), Attempts: p.FIC.MaxRetries + 1}
	}
	if rerr != nil {
		return nil, rerr
	}
	if attempt.Outcome == retry.Terminal {
		return nil, fmt.Errorf("service principal creation failed: %w", attempt.Err)
	}
	logging.Info("created service principal", "appId", appID, "id", attempt.Value.ID)
	return attempt.Value, nil
}

// ensureFederatedCredential binds the managed identity to the blueprint.
// Applies only with managed hosting and a known principal id; otherwise the
// step is skipped, which is success.
func (p *BlueprintProvisioner) ensureFederatedCredential(ctx context.Context, cfg *config.Config, res *BlueprintResult) error {
	if !cfg.ManagedHosting() || cfg.ManagedIdentityPrincipalID == "" {
		res.FICSkipped = true
		logging.Debug("federated credential not applicable",
			"hosting", cfg.Hosting, "principalId", cfg.ManagedIdentityPrincipalID)
		return nil
	}

	exists, err := p.Dir.FederatedCredentialExists(ctx, cfg.AppObjectID, cfg.ManagedIdentityPrincipalID)
	if err != nil {
		return fmt.Errorf("federated credential lookup failed: %w", err)
	}
	if exists {
		logging.Info("federated credential already exists", "subject", cfg.ManagedIdentityPrincipalID)
		return nil
	}

	spec := FederatedCredentialSpec{
		Name:     ficName(cfg.DisplayName),
		Issuer:   fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.TenantID),
		Subject:  cfg.ManagedIdentityPrincipalID,
		Audience: TokenExchangeAudience,
	}

	// The new application object is frequently not yet visible to the
	// credential endpoint; not-found here is expected, not exceptional.
	attempt, rerr := retry.Do(ctx, p.FIC, func(ctx context.Context) retry.Attempt[struct{}] {
		err := p.Dir.CreateFederatedCredential(ctx, cfg.AppObjectID, spec)
		switch {
		case errors.Is(err, ErrConflict):
			return retry.Ok(struct{}{})
		case errors.Is(err, ErrNotFound):
			return retry.Again[struct{}](err)
		case err != nil:
			return retry.Fail[struct{}](err)
		default:
			return retry.Ok(struct{}{})
		}
	}, retry.ShouldRetry[struct{}])
	if errors.Is(rerr, retry.ErrRetriesExhausted) {
		return &PropagationTimeoutError{Resource: fmt.Sprintf("federated credential %s", spec.Name), Attempts: p.FIC.MaxRetries + 1}
	}
	if rerr != nil {
		return rerr
	}
	if attempt.Outcome == retry.Terminal {
		return fmt.Errorf("federated credential creation failed: %w", attempt.Err)
	}
	logging.Info("created federated credential", "name", spec.Name)
	return nil
}

// ensureConsent makes sure the blueprint's own delegated grant exists,
// driving the interactive admin consent flow when it does not.
func (p *BlueprintProvisioner) ensureConsent(ctx context.Context, cfg *config.Config, res *BlueprintResult) error {
	scopes := p.ConsentScopes
	if len(scopes) == 0 {
		scopes = DefaultConsentScopes
	}

	resourceSP, err := p.Dir.GetServicePrincipal(ctx, GraphAppID)
	if err != nil {
		return fmt.Errorf("resource principal lookup failed: %w", err)
	}
	if resourceSP == nil {
		resourceSP, err = p.Dir.CreateServicePrincipal(ctx, GraphAppID)
		if err != nil {
			return fmt.Errorf("resource principal creation failed: %w", err)
		}
	}

	if res.AlreadyExisted {
		granted, err := p.Dir.GrantedScopes(ctx, res.ServicePrincipalID, resourceSP.ID)
		if err != nil {
			return fmt.Errorf("grant lookup failed: %w", err)
		}
		if len(MissingScopes(granted, scopes)) == 0 {
			logging.Info("admin consent already granted", "scopes", strings.Join(scopes, " "))
			p.configureInheritable(ctx, cfg, res, scopes)
			return nil
		}
	}

	consentURL := p.consentURL(cfg.TenantID, cfg.AppID, scopes)
	if err := p.Prompter.OpenConsentURL(consentURL); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not open browser: %v", err))
	}
	fmt.Println("Waiting for admin consent...")

	// Poll until the grant covers the requested scopes.
	_, rerr := retry.Do(ctx, p.ConsentPoll, func(ctx context.Context) retry.Attempt[struct{}] {
		granted, err := p.Dir.GrantedScopes(ctx, res.ServicePrincipalID, resourceSP.ID)
		if err != nil {
			return retry.Fail[struct{}](err)
		}
		if len(MissingScopes(granted, scopes)) > 0 {
			return retry.Again[struct{}](fmt.Errorf("grant not visible yet"))
		}
		return retry.Ok(struct{}{})
	}, retry.ShouldRetry[struct{}])
	if errors.Is(rerr, retry.ErrRetriesExhausted) {
		return fmt.Errorf("admin consent was not granted in time; re-run `a365ctl blueprint` after consenting at %s", consentURL)
	}
	if rerr != nil {
		return rerr
	}
	logging.Info("admin consent granted", "scopes", strings.Join(scopes, " "))

	p.configureInheritable(ctx, cfg, res, scopes)
	return nil
}

// configureInheritable sets the inheritable permission record for the base
// scopes. Verification failure is downgraded to a warning; the pipeline
// never blocks on this best-effort call.
func (p *BlueprintProvisioner) configureInheritable(ctx context.Context, cfg *config.Config, res *BlueprintResult, scopes []string) {
	rec := cfg.Consent("Microsoft Graph", GraphAppID)
	rec.Scopes = scopes
	rec.ConsentGranted = true
	now := time.Now().UTC()
	rec.ConsentTime = &now

	if err := p.Dir.SetInheritablePermissions(ctx, cfg.AppObjectID, GraphAppID, scopes); err != nil {
		rec.InheritableError = err.Error()
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not configure inheritable permissions: %v", err))
		return
	}

	_, rerr := retry.Do(ctx, p.Visibility, func(ctx context.Context) retry.Attempt[struct{}] {
		got, err := p.Dir.InheritableScopes(ctx, cfg.AppObjectID, GraphAppID)
		if err != nil {
			return retry.Fail[struct{}](err)
		}
		if len(MissingScopes(got, scopes)) > 0 {
			return retry.Again[struct{}](fmt.Errorf("inheritable permissions not visible yet"))
		}
		return retry.Ok(struct{}{})
	}, retry.ShouldRetry[struct{}])
	if rerr != nil {
		rec.InheritableError = rerr.Error()
		res.Warnings = append(res.Warnings, fmt.Sprintf("inheritable permission verification failed: %v", rerr))
		return
	}
	rec.InheritableConfigured = true
	rec.InheritableError = ""
}

// ensureClientSecret validates an existing secret or mints a fresh one,
// persisting it immediately.
func (p *BlueprintProvisioner) ensureClientSecret(ctx context.Context, cfg *config.Config, res *BlueprintResult) error {
	if res.AlreadyExisted && cfg.ClientSecret != "" {
		valid, err := p.Dir.ValidateClientSecret(ctx, cfg.TenantID, cfg.AppID, cfg.ClientSecret)
		if err != nil {
			return fmt.Errorf("client secret validation failed: %w", err)
		}
		if valid {
			logging.Info("existing client secret is still valid")
			return nil
		}
		logging.Warn("existing client secret is invalid, minting a replacement")
	}

	secret, err := p.Dir.AddClientSecret(ctx, cfg.AppObjectID, "a365ctl-"+uuid.NewString()[:8])
	if err != nil {
		return fmt.Errorf("failed to add client secret: %w", err)
	}
	cfg.ClientSecret = secret

	// Persist now so a crash before the end of the step cannot lose the
	// secret; it cannot be read back from the directory later.
	if p.Persist != nil {
		if err := p.Persist(cfg); err != nil {
			return fmt.Errorf("failed to persist client secret: %w", err)
		}
	}
	logging.Info("minted client secret")
	return nil
}

func (p *BlueprintProvisioner) consentURL(tenantID, appID string, scopes []string) string {
	q := url.Values{}
	q.Set("client_id", appID)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("redirect_uri", consentRedirectURI)
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0/adminconsent?%s", tenantID, q.Encode())
}

// ficName derives the federated credential name from the display name plus a
// fixed suffix, sanitized to the characters the directory accepts.
func ficName(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '_':
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "agent"
	}
	return name + ficNameSuffix
}
