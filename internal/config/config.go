package config

import (
	"time"
)

// Hosting modes. Managed means the tool provisions compute and derives the
// messaging endpoint from it; external means the caller brings their own
// HTTPS endpoint and no infrastructure is created.
const (
	HostingManaged  = "managed"
	HostingExternal = "external"
)

// Static is the human-authored configuration layer (a365.yaml). It is the
// source of truth for names: a changed display name here must win over any
// cached id in the dynamic layer.
type Static struct {
	TenantID       string `yaml:"tenantId" validate:"required,uuid"`
	SubscriptionID string `yaml:"subscriptionId" validate:"required,uuid"`
	ResourceGroup  string `yaml:"resourceGroup" validate:"required"`
	Location       string `yaml:"location" validate:"required"`
	PlanName       string `yaml:"planName" validate:"required_if=Hosting managed"`
	PlanSKU        string `yaml:"planSku,omitempty"`
	SiteName       string `yaml:"siteName" validate:"required_if=Hosting managed"`
	DisplayName    string `yaml:"displayName" validate:"required"`
	RuntimeStack   string `yaml:"runtimeStack,omitempty"`
	Hosting        string `yaml:"hosting" validate:"required,oneof=managed external"`

	// ExternalEndpoint is the caller-supplied messaging endpoint, used only
	// when Hosting is external.
	ExternalEndpoint string `yaml:"externalEndpoint,omitempty" validate:"omitempty,url"`

	Resources []ResourceSpec `yaml:"resources,omitempty" validate:"dive"`
}

// ResourceSpec names a downstream resource API the agent needs delegated
// permissions on.
type ResourceSpec struct {
	Name   string   `yaml:"name" validate:"required"`
	AppID  string   `yaml:"appId" validate:"required"`
	Scopes []string `yaml:"scopes" validate:"required,min=1"`
}

// Dynamic is the CLI-managed layer (.a365/state.yaml). Every field is an
// output of some provisioning step; the whole layer can be deleted and
// regenerated by a fresh run against the static layer.
type Dynamic struct {
	ManagedIdentityPrincipalID string `yaml:"managedIdentityPrincipalId,omitempty"`
	AppID                      string `yaml:"appId,omitempty"`
	AppObjectID                string `yaml:"appObjectId,omitempty"`
	ServicePrincipalID         string `yaml:"servicePrincipalId,omitempty"`
	ClientSecret               string `yaml:"clientSecret,omitempty"`
	MessagingEndpoint          string `yaml:"messagingEndpoint,omitempty"`

	Consents []ResourceConsent `yaml:"consents,omitempty"`
}

// ResourceConsent records consent state for one downstream resource API.
// ConsentGranted and InheritableConfigured track two distinct directory
// calls and are set independently.
type ResourceConsent struct {
	Resource              string     `yaml:"resource"`
	AppID                 string     `yaml:"appId"`
	Scopes                []string   `yaml:"scopes,omitempty"`
	ConsentGranted        bool       `yaml:"consentGranted"`
	ConsentTime           *time.Time `yaml:"consentTime,omitempty"`
	InheritableConfigured bool       `yaml:"inheritableConfigured"`
	InheritableError      string     `yaml:"inheritableError,omitempty"`
}

// Config is the merged in-memory record every provisioner reads and mutates.
type Config struct {
	Static
	Dynamic
}

// Merge combines the two persisted layers into the working record.
func Merge(static Static, dynamic Dynamic) *Config {
	return &Config{Static: static, Dynamic: dynamic}
}

// Split extracts the CLI-managed layer for persistence. The static layer is
// never written back; it belongs to the user.
func Split(cfg *Config) Dynamic {
	return cfg.Dynamic
}

// Consent returns the consent record for a resource app id, creating it if
// absent.
func (c *Config) Consent(name, appID string) *ResourceConsent {
	for i := range c.Consents {
		if c.Consents[i].AppID == appID {
			return &c.Consents[i]
		}
	}
	c.Consents = append(c.Consents, ResourceConsent{Resource: name, AppID: appID})
	return &c.Consents[len(c.Consents)-1]
}

// ManagedHosting reports whether the tool owns the compute resources.
func (c *Config) ManagedHosting() bool {
	return c.Hosting == HostingManaged
}
