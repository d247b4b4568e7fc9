package provision

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/agent365/a365ctl/internal/config"
	"github.com/agent365/a365ctl/internal/logging"
)

const (
	endpointNameSuffix = "-endpoint"
	endpointNameMinLen = 4
	endpointNameMaxLen = 42
	messagingPath      = "/api/messages"
)

// EndpointRegistrar registers the messaging callback URL against the
// blueprint.
type EndpointRegistrar struct {
	Cloud CloudAPI
}

// EndpointResult reports the registered endpoint.
type EndpointResult struct {
	Endpoint       string
	Name           string
	AlreadyExisted bool
}

// Register derives the endpoint URL and name from the configuration and
// registers them. An already-existing registration is success.
func (r *EndpointRegistrar) Register(ctx context.Context, cfg *config.Config) (EndpointResult, error) {
	var res EndpointResult

	if cfg.ManagedHosting() {
		res.Endpoint = fmt.Sprintf("https://%s.azurewebsites.net%s", cfg.SiteName, messagingPath)
		name, err := DeriveEndpointName(cfg.SiteName)
		if err != nil {
			return res, err
		}
		res.Name = name
	} else {
		endpoint, host, err := validateEndpointURL(cfg.ExternalEndpoint)
		if err != nil {
			return res, err
		}
		res.Endpoint = endpoint
		name, err := DeriveEndpointName(host)
		if err != nil {
			return res, err
		}
		res.Name = name
	}

	if cfg.AppID == "" {
		return res, fmt.Errorf("blueprint is not provisioned; run `a365ctl blueprint` first")
	}

	existed, err := r.Cloud.RegisterEndpoint(ctx, cfg.ResourceGroup, EndpointSpec{
		Name:        res.Name,
		DisplayName: cfg.DisplayName,
		AppID:       cfg.AppID,
		Endpoint:    res.Endpoint,
		Location:    cfg.Location,
	})
	if err != nil {
		return res, fmt.Errorf("failed to register endpoint %s: %w", res.Name, err)
	}
	res.AlreadyExisted = existed
	cfg.MessagingEndpoint = res.Endpoint

	if existed {
		logging.Info("messaging endpoint already registered", "name", res.Name)
	} else {
		logging.Info("registered messaging endpoint", "name", res.Name, "endpoint", res.Endpoint)
	}
	return res, nil
}

// DeriveEndpointName builds the registration name from a base name plus the
// fixed suffix. Provider rules: lowercase, [a-z0-9-] only (the name is cut at
// the first disallowed character), surrounding dashes trimmed, at most 42
// characters and at least 4 after all of that.
func DeriveEndpointName(base string) (string, error) {
	name := sanitizeEndpointName(strings.ToLower(base) + endpointNameSuffix)
	if len(name) > endpointNameMaxLen {
		name = strings.Trim(name[:endpointNameMaxLen], "-")
	}
	if len(name) < endpointNameMinLen {
		return "", &EndpointNameError{Input: base, Name: name}
	}
	return name, nil
}

func sanitizeEndpointName(s string) string {
	for i, r := range s {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !valid {
			s = s[:i]
			break
		}
	}
	return strings.Trim(s, "-")
}

// validateEndpointURL checks the external endpoint is an absolute HTTPS URL
// and returns it with its host.
func validateEndpointURL(raw string) (string, string, error) {
	if raw == "" {
		return "", "", fmt.Errorf("externalEndpoint is required for external hosting")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid externalEndpoint %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Scheme != "https" || u.Host == "" {
		return "", "", fmt.Errorf("externalEndpoint %q must be an absolute https URL", raw)
	}
	return raw, u.Hostname(), nil
}
