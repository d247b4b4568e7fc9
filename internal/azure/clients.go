// Package azure adapts the Azure Resource Manager SDK clients to the narrow
// hosting surface the provisioner needs: resource groups, app service plans,
// web apps, and bot channel registrations.
package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/botservice/armbotservice"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"

	"github.com/agent365/a365ctl/internal/logging"
)

// Clients bundles the ARM clients for one subscription. NewClients builds
// every client up front so any pipeline step can run first; SetSubscription
// is only the best-effort visibility check.
type Clients struct {
	cred azcore.TokenCredential

	subscriptionID string
	groups         *armresources.ResourceGroupsClient
	plans          *armappservice.PlansClient
	sites          *armappservice.WebAppsClient
	bots           *armbotservice.BotsClient
	subs           *armsubscriptions.Client
}

// NewClients builds the client bundle against subscriptionID with the default
// credential chain: environment variables, managed identity, then the local
// az CLI login.
func NewClients(subscriptionID string) (*Clients, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build azure credential: %w", err)
	}
	return newClientsWithCredential(subscriptionID, cred)
}

func newClientsWithCredential(subscriptionID string, cred azcore.TokenCredential) (*Clients, error) {
	subs, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build subscriptions client: %w", err)
	}
	groups, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource groups client: %w", err)
	}
	plans, err := armappservice.NewPlansClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build plans client: %w", err)
	}
	sites, err := armappservice.NewWebAppsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build web apps client: %w", err)
	}
	bots, err := armbotservice.NewBotsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build bot service client: %w", err)
	}
	return &Clients{
		cred:           cred,
		subscriptionID: subscriptionID,
		groups:         groups,
		plans:          plans,
		sites:          sites,
		bots:           bots,
		subs:           subs,
	}, nil
}

// Credential exposes the shared token credential so the directory client can
// reuse the same login.
func (c *Clients) Credential() azcore.TokenCredential {
	return c.cred
}

// SetSubscription verifies the subscription is visible to the credential.
// The resource clients are already pinned to it, so a failure here leaves
// them usable and callers treat it as a warning.
func (c *Clients) SetSubscription(ctx context.Context, subscriptionID string) error {
	if _, err := c.subs.Get(ctx, subscriptionID, nil); err != nil {
		return classify(err, "subscription "+subscriptionID)
	}
	logging.Debug("subscription selected", "subscription", subscriptionID)
	return nil
}
