package provision

import (
	"context"

	"github.com/agent365/a365ctl/internal/config"
)

// Application is the directory's application registration (the blueprint).
type Application struct {
	AppID       string
	ObjectID    string
	DisplayName string
}

// ServicePrincipal is the tenant-local principal for an application.
type ServicePrincipal struct {
	ID    string
	AppID string
}

// CreateApplicationParams describes a new blueprint registration.
type CreateApplicationParams struct {
	DisplayName string
	// SignInAudience is the supported account type, e.g. AzureADMultipleOrgs.
	SignInAudience string
	// AgentBlueprint marks the registration as an agent identity blueprint.
	AgentBlueprint bool
	// SponsorUserID optionally binds the current interactive user as sponsor.
	// Directories that reject the field cause one automatic retry without it.
	SponsorUserID string
}

// FederatedCredentialSpec describes the trust binding between a managed
// identity and the blueprint application.
type FederatedCredentialSpec struct {
	Name     string
	Issuer   string
	Subject  string
	Audience string
}

// EndpointSpec describes a messaging endpoint registration.
type EndpointSpec struct {
	Name        string
	DisplayName string
	AppID       string
	Endpoint    string
	Location    string
}

// CloudAPI is the cloud resource capability the infrastructure provisioner
// and endpoint registrar consume. Implementations must distinguish
// "confirmed absent" (false, nil) from "could not determine" (error), and
// must translate provider error payloads into the typed errors in this
// package exactly once.
type CloudAPI interface {
	// SetSubscription pins the active subscription context. Best-effort:
	// callers treat a failure as a warning.
	SetSubscription(ctx context.Context, subscriptionID string) error

	ResourceGroupExists(ctx context.Context, name string) (bool, error)
	CreateResourceGroup(ctx context.Context, name, location string) error

	PlanExists(ctx context.Context, group, name string) (bool, error)
	CreatePlan(ctx context.Context, group, name, location, sku string) error

	SiteExists(ctx context.Context, group, name string) (bool, error)
	CreateSite(ctx context.Context, group, name, location, plan, runtime string) error
	// SetSiteRuntime reconfigures the runtime stack of an existing site.
	SetSiteRuntime(ctx context.Context, group, name, runtime string) error

	// AssignManagedIdentity enables the system-assigned identity on a site
	// and returns its principal id. A conflict response ("already has an
	// identity") surfaces as ErrConflict; callers recover the existing id
	// with ManagedIdentityPrincipalID.
	AssignManagedIdentity(ctx context.Context, group, name string) (string, error)

	// ManagedIdentityPrincipalID reads the principal id of the site's
	// existing system-assigned identity.
	ManagedIdentityPrincipalID(ctx context.Context, group, name string) (string, error)

	// RegisterEndpoint registers the messaging endpoint. An already-existing
	// registration is success with the flag set.
	RegisterEndpoint(ctx context.Context, group string, spec EndpointSpec) (alreadyExisted bool, err error)
}

// DirectoryAPI is the identity directory capability. Lookups return
// (nil, nil) for confirmed-absent; an error always means the answer could
// not be determined.
type DirectoryAPI interface {
	FindApplicationByName(ctx context.Context, displayName string) (*Application, error)
	GetApplication(ctx context.Context, objectID string) (*Application, error)
	CreateApplication(ctx context.Context, params CreateApplicationParams) (*Application, error)
	SetIdentifierURI(ctx context.Context, objectID, uri string) error

	GetServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error)
	CreateServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error)

	FederatedCredentialExists(ctx context.Context, objectID, subject string) (bool, error)
	CreateFederatedCredential(ctx context.Context, objectID string, spec FederatedCredentialSpec) error

	// GrantedScopes returns the scopes currently covered by the delegated
	// grant between the client and resource principals, or an empty slice
	// when no grant exists.
	GrantedScopes(ctx context.Context, clientSPID, resourceSPID string) ([]string, error)
	// GrantScopes creates or updates the delegated grant to cover scopes.
	GrantScopes(ctx context.Context, clientSPID, resourceSPID string, scopes []string) error

	// RegisterRequiredScopes records the scopes in the application manifest.
	RegisterRequiredScopes(ctx context.Context, objectID, resourceAppID string, scopes []string) error

	SetInheritablePermissions(ctx context.Context, objectID, resourceAppID string, scopes []string) error
	InheritableScopes(ctx context.Context, objectID, resourceAppID string) ([]string, error)

	AddClientSecret(ctx context.Context, objectID, displayName string) (string, error)
	// ValidateClientSecret probes the token endpoint with the credential and
	// reports whether it is still accepted.
	ValidateClientSecret(ctx context.Context, tenantID, appID, secret string) (bool, error)

	CurrentUserID(ctx context.Context) (string, error)
}

// ConsentPrompter opens the admin consent URL for the operator. Failure to
// open is non-fatal; the URL is printed instead.
type ConsentPrompter interface {
	OpenConsentURL(url string) error
}

// ConfigPersister saves the configuration record after each mutation so a
// later invocation resumes from the latest state.
type ConfigPersister interface {
	Save(cfg *config.Config) error
}
