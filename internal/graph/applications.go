package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoftgraph/msgraph-sdk-go/applications"
	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/agent365/a365ctl/internal/logging"
	"github.com/agent365/a365ctl/internal/provision"
)

// blueprintKind marks the registration as an agent blueprint in the
// directory. The directory owns the schema; we only pass it through.
const blueprintKind = "agentBlueprint"

// FindApplicationByName looks an application up by exact display name.
// Returns (nil, nil) when absent and an error when the name is ambiguous.
func (c *Client) FindApplicationByName(ctx context.Context, displayName string) (*provision.Application, error) {
	filter := fmt.Sprintf("displayName eq '%s'", escapeODataLiteral(displayName))
	// Filtered directory queries need the eventual-consistency header.
	headers := abstractions.NewRequestHeaders()
	headers.Add("ConsistencyLevel", "eventual")
	resp, err := c.sdk.Applications().Get(ctx, &applications.ApplicationsRequestBuilderGetRequestConfiguration{
		Headers: headers,
		QueryParameters: &applications.ApplicationsRequestBuilderGetQueryParameters{
			Filter: &filter,
		},
	})
	if err != nil {
		return nil, classify(err, "application lookup")
	}

	apps := resp.GetValue()
	switch len(apps) {
	case 0:
		return nil, nil
	case 1:
		return toApplication(apps[0]), nil
	default:
		return nil, fmt.Errorf("%d applications share the display name %q; rename or delete the extras before provisioning", len(apps), displayName)
	}
}

func (c *Client) GetApplication(ctx context.Context, objectID string) (*provision.Application, error) {
	app, err := c.sdk.Applications().ByApplicationId(objectID).Get(ctx, nil)
	if err != nil {
		return nil, classify(err, "application "+objectID)
	}
	return toApplication(app), nil
}

func (c *Client) CreateApplication(ctx context.Context, params provision.CreateApplicationParams) (*provision.Application, error) {
	app := models.NewApplication()
	app.SetDisplayName(to.Ptr(params.DisplayName))
	app.SetSignInAudience(to.Ptr(params.SignInAudience))

	additional := map[string]any{}
	if params.AgentBlueprint {
		additional["serviceManagementReference"] = blueprintKind
		additional["tags@odata.type"] = "Collection(String)"
		app.SetTags([]string{blueprintKind})
	}
	if params.SponsorUserID != "" {
		additional["sponsors@odata.bind"] = []string{
			"https://graph.microsoft.com/v1.0/users/" + params.SponsorUserID,
		}
	}
	if len(additional) > 0 {
		app.SetAdditionalData(additional)
	}

	created, err := c.sdk.Applications().Post(ctx, app, nil)
	if err != nil {
		return nil, classify(err, "application "+params.DisplayName)
	}
	logging.Info("created application registration", "displayName", params.DisplayName)
	return toApplication(created), nil
}

func (c *Client) SetIdentifierURI(ctx context.Context, objectID, uri string) error {
	patch := models.NewApplication()
	patch.SetIdentifierUris([]string{uri})
	if _, err := c.sdk.Applications().ByApplicationId(objectID).Patch(ctx, patch, nil); err != nil {
		return classify(err, "application "+objectID)
	}
	return nil
}

func (c *Client) FederatedCredentialExists(ctx context.Context, objectID, subject string) (bool, error) {
	resp, err := c.sdk.Applications().ByApplicationId(objectID).FederatedIdentityCredentials().Get(ctx, nil)
	if err != nil {
		return false, classify(err, "federated credentials on "+objectID)
	}
	for _, fic := range resp.GetValue() {
		if s := fic.GetSubject(); s != nil && *s == subject {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) CreateFederatedCredential(ctx context.Context, objectID string, spec provision.FederatedCredentialSpec) error {
	fic := models.NewFederatedIdentityCredential()
	fic.SetName(to.Ptr(spec.Name))
	fic.SetIssuer(to.Ptr(spec.Issuer))
	fic.SetSubject(to.Ptr(spec.Subject))
	fic.SetAudiences([]string{spec.Audience})

	_, err := c.sdk.Applications().ByApplicationId(objectID).FederatedIdentityCredentials().Post(ctx, fic, nil)
	if err != nil {
		return classify(err, "federated credential "+spec.Name)
	}
	logging.Info("created federated credential", "name", spec.Name)
	return nil
}

// AddClientSecret mints a password credential on the application. The secret
// text is only ever returned by this call.
func (c *Client) AddClientSecret(ctx context.Context, objectID, displayName string) (string, error) {
	cred := models.NewPasswordCredential()
	cred.SetDisplayName(to.Ptr(displayName))
	cred.SetEndDateTime(to.Ptr(time.Now().UTC().AddDate(2, 0, 0)))

	body := applications.NewItemAddPasswordPostRequestBody()
	body.SetPasswordCredential(cred)

	resp, err := c.sdk.Applications().ByApplicationId(objectID).AddPassword().Post(ctx, body, nil)
	if err != nil {
		return "", classify(err, "client secret on "+objectID)
	}
	secret := resp.GetSecretText()
	if secret == nil || *secret == "" {
		return "", fmt.Errorf("directory accepted the password credential but returned no secret text")
	}
	return *secret, nil
}

// CurrentUserID returns the object id of the signed-in user, used as the
// blueprint sponsor. Fails when the credential is not user-delegated.
func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	me, err := c.sdk.Me().Get(ctx, nil)
	if err != nil {
		return "", classify(err, "signed-in user")
	}
	if me.GetId() == nil {
		return "", fmt.Errorf("signed-in user has no object id")
	}
	return *me.GetId(), nil
}

func toApplication(app models.Applicationable) *provision.Application {
	out := &provision.Application{}
	if v := app.GetAppId(); v != nil {
		out.AppID = *v
	}
	if v := app.GetId(); v != nil {
		out.ObjectID = *v
	}
	if v := app.GetDisplayName(); v != nil {
		out.DisplayName = *v
	}
	return out
}
