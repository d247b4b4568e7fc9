package graph

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/google/uuid"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/oauth2permissiongrants"

	"github.com/agent365/a365ctl/internal/logging"
)

// consentTypeAllPrincipals marks a grant as tenant-wide admin consent.
const consentTypeAllPrincipals = "AllPrincipals"

// GrantedScopes returns the delegated scopes the client principal holds on
// the resource principal under tenant-wide consent. Nil means no grant.
func (c *Client) GrantedScopes(ctx context.Context, clientSPID, resourceSPID string) ([]string, error) {
	grant, err := c.findGrant(ctx, clientSPID, resourceSPID)
	if err != nil {
		return nil, err
	}
	if grant == nil || grant.GetScope() == nil {
		return nil, nil
	}
	return splitScopes(*grant.GetScope()), nil
}

// GrantScopes writes the delegated grant between the two principals,
// patching an existing grant rather than duplicating it.
func (c *Client) GrantScopes(ctx context.Context, clientSPID, resourceSPID string, scopes []string) error {
	existing, err := c.findGrant(ctx, clientSPID, resourceSPID)
	if err != nil {
		return err
	}

	scope := joinScopes(scopes)
	if existing != nil && existing.GetId() != nil {
		patch := models.NewOAuth2PermissionGrant()
		patch.SetScope(to.Ptr(scope))
		if _, err := c.sdk.Oauth2PermissionGrants().ByOAuth2PermissionGrantId(*existing.GetId()).Patch(ctx, patch, nil); err != nil {
			return classify(err, "permission grant")
		}
		logging.Info("updated delegated grant", "scopes", scope)
		return nil
	}

	grant := models.NewOAuth2PermissionGrant()
	grant.SetClientId(to.Ptr(clientSPID))
	grant.SetResourceId(to.Ptr(resourceSPID))
	grant.SetConsentType(to.Ptr(consentTypeAllPrincipals))
	grant.SetScope(to.Ptr(scope))
	if _, err := c.sdk.Oauth2PermissionGrants().Post(ctx, grant, nil); err != nil {
		return classify(err, "permission grant")
	}
	logging.Info("created delegated grant", "scopes", scope)
	return nil
}

func (c *Client) findGrant(ctx context.Context, clientSPID, resourceSPID string) (models.OAuth2PermissionGrantable, error) {
	filter := fmt.Sprintf("clientId eq '%s' and resourceId eq '%s' and consentType eq '%s'",
		escapeODataLiteral(clientSPID), escapeODataLiteral(resourceSPID), consentTypeAllPrincipals)
	resp, err := c.sdk.Oauth2PermissionGrants().Get(ctx, &oauth2permissiongrants.Oauth2PermissionGrantsRequestBuilderGetRequestConfiguration{
		QueryParameters: &oauth2permissiongrants.Oauth2PermissionGrantsRequestBuilderGetQueryParameters{
			Filter: &filter,
		},
	})
	if err != nil {
		return nil, classify(err, "permission grant lookup")
	}
	grants := resp.GetValue()
	if len(grants) == 0 {
		return nil, nil
	}
	return grants[0], nil
}

// RegisterRequiredScopes records the resource scopes in the application's
// requiredResourceAccess manifest entry, resolving scope names to the ids
// the resource principal publishes.
func (c *Client) RegisterRequiredScopes(ctx context.Context, objectID, resourceAppID string, scopes []string) error {
	ids, err := c.resolveScopeIDs(ctx, resourceAppID, scopes)
	if err != nil {
		return err
	}

	app, err := c.sdk.Applications().ByApplicationId(objectID).Get(ctx, nil)
	if err != nil {
		return classify(err, "application "+objectID)
	}

	entry := models.NewRequiredResourceAccess()
	entry.SetResourceAppId(to.Ptr(resourceAppID))
	var access []models.ResourceAccessable
	for _, id := range ids {
		ra := models.NewResourceAccess()
		ra.SetId(to.Ptr(id))
		ra.SetTypeEscaped(to.Ptr("Scope"))
		access = append(access, ra)
	}
	entry.SetResourceAccess(access)

	// Keep entries for other resources, replace ours.
	required := []models.RequiredResourceAccessable{entry}
	for _, existing := range app.GetRequiredResourceAccess() {
		if id := existing.GetResourceAppId(); id != nil && *id == resourceAppID {
			continue
		}
		required = append(required, existing)
	}

	patch := models.NewApplication()
	patch.SetRequiredResourceAccess(required)
	if _, err := c.sdk.Applications().ByApplicationId(objectID).Patch(ctx, patch, nil); err != nil {
		return classify(err, "application "+objectID)
	}
	return nil
}

// resolveScopeIDs maps scope names to the ids published by the resource's
// service principal.
func (c *Client) resolveScopeIDs(ctx context.Context, resourceAppID string, scopes []string) ([]uuid.UUID, error) {
	sp, err := c.sdk.ServicePrincipalsWithAppId(to.Ptr(resourceAppID)).Get(ctx, nil)
	if err != nil {
		return nil, classify(err, "service principal for "+resourceAppID)
	}

	published := map[string]uuid.UUID{}
	for _, scope := range sp.GetOauth2PermissionScopes() {
		if scope.GetValue() == nil || scope.GetId() == nil {
			continue
		}
		published[*scope.GetValue()] = *scope.GetId()
	}

	ids := make([]uuid.UUID, 0, len(scopes))
	for _, name := range scopes {
		id, ok := published[name]
		if !ok {
			return nil, fmt.Errorf("resource %s does not publish a delegated scope named %q", resourceAppID, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
