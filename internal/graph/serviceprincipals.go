package graph

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/agent365/a365ctl/internal/logging"
	"github.com/agent365/a365ctl/internal/provision"
)

// GetServicePrincipal resolves a service principal by its application id.
// Returns (nil, nil) when no principal exists in the tenant yet.
func (c *Client) GetServicePrincipal(ctx context.Context, appID string) (*provision.ServicePrincipal, error) {
	sp, err := c.sdk.ServicePrincipalsWithAppId(to.Ptr(appID)).Get(ctx, nil)
	if err != nil {
		cerr := classify(err, "service principal for "+appID)
		if isNotFound(cerr) {
			return nil, nil
		}
		return nil, cerr
	}
	return toServicePrincipal(sp), nil
}

func (c *Client) CreateServicePrincipal(ctx context.Context, appID string) (*provision.ServicePrincipal, error) {
	sp := models.NewServicePrincipal()
	sp.SetAppId(to.Ptr(appID))

	created, err := c.sdk.ServicePrincipals().Post(ctx, sp, nil)
	if err != nil {
		return nil, classify(err, "service principal for "+appID)
	}
	logging.Info("created service principal", "appId", appID)
	return toServicePrincipal(created), nil
}

// ValidateClientSecret checks a stored secret by requesting a token with it.
// An authentication failure means the secret is stale, not that the check
// itself failed.
func (c *Client) ValidateClientSecret(ctx context.Context, tenantID, appID, secret string) (bool, error) {
	cred, err := azidentity.NewClientSecretCredential(tenantID, appID, secret, nil)
	if err != nil {
		return false, err
	}
	_, err = cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: GraphScopes})
	if err != nil {
		var authErr *azidentity.AuthenticationFailedError
		if errors.As(err, &authErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func toServicePrincipal(sp models.ServicePrincipalable) *provision.ServicePrincipal {
	out := &provision.ServicePrincipal{}
	if v := sp.GetId(); v != nil {
		out.ID = *v
	}
	if v := sp.GetAppId(); v != nil {
		out.AppID = *v
	}
	return out
}
