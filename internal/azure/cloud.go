package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appservice/armappservice/v4"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/botservice/armbotservice"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/agent365/a365ctl/internal/logging"
	"github.com/agent365/a365ctl/internal/provision"
)

// Clients implements provision.CloudAPI.
var _ provision.CloudAPI = (*Clients)(nil)

func (c *Clients) ResourceGroupExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.groups.CheckExistence(ctx, name, nil)
	if err != nil {
		return false, classify(err, "resource group "+name)
	}
	return resp.Success, nil
}

func (c *Clients) CreateResourceGroup(ctx context.Context, name, location string) error {
	_, err := c.groups.CreateOrUpdate(ctx, name, armresources.ResourceGroup{
		Location: to.Ptr(location),
	}, nil)
	if err != nil {
		return classify(err, "resource group "+name)
	}
	logging.Info("created resource group", "name", name, "location", location)
	return nil
}

func (c *Clients) PlanExists(ctx context.Context, group, name string) (bool, error) {
	_, err := c.plans.Get(ctx, group, name, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(err, "plan "+name)
	}
	return true, nil
}

func (c *Clients) CreatePlan(ctx context.Context, group, name, location, sku string) error {
	poller, err := c.plans.BeginCreateOrUpdate(ctx, group, name, armappservice.Plan{
		Location: to.Ptr(location),
		SKU: &armappservice.SKUDescription{
			Name: to.Ptr(sku),
		},
		Properties: &armappservice.PlanProperties{
			// Linux plans must be marked reserved.
			Reserved: to.Ptr(true),
		},
	}, nil)
	if err != nil {
		return classify(err, "plan "+name)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(err, "plan "+name)
	}
	logging.Info("created app service plan", "name", name, "sku", sku)
	return nil
}

func (c *Clients) SiteExists(ctx context.Context, group, name string) (bool, error) {
	_, err := c.sites.Get(ctx, group, name, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classify(err, "site "+name)
	}
	return true, nil
}

func (c *Clients) CreateSite(ctx context.Context, group, name, location, plan, runtime string) error {
	poller, err := c.sites.BeginCreateOrUpdate(ctx, group, name, armappservice.Site{
		Location: to.Ptr(location),
		Properties: &armappservice.SiteProperties{
			ServerFarmID: to.Ptr(plan),
			HTTPSOnly:    to.Ptr(true),
			SiteConfig: &armappservice.SiteConfig{
				LinuxFxVersion: to.Ptr(runtime),
			},
		},
	}, nil)
	if err != nil {
		return classifySiteCreate(err, name)
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classifySiteCreate(err, name)
	}
	logging.Info("created site", "name", name, "runtime", runtime)
	return nil
}

func (c *Clients) SetSiteRuntime(ctx context.Context, group, name, runtime string) error {
	_, err := c.sites.UpdateConfiguration(ctx, group, name, armappservice.SiteConfigResource{
		Properties: &armappservice.SiteConfig{
			LinuxFxVersion: to.Ptr(runtime),
		},
	}, nil)
	if err != nil {
		return classify(err, "site "+name)
	}
	return nil
}

func (c *Clients) AssignManagedIdentity(ctx context.Context, group, name string) (string, error) {
	resp, err := c.sites.Update(ctx, group, name, armappservice.SitePatchResource{
		Identity: &armappservice.ManagedServiceIdentity{
			Type: to.Ptr(armappservice.ManagedServiceIdentityTypeSystemAssigned),
		},
	}, nil)
	if err != nil {
		return "", classify(err, "managed identity on "+name)
	}
	id, err := identityPrincipalID(name, resp.Identity)
	if err != nil {
		return "", err
	}
	logging.Info("assigned system managed identity", "site", name)
	return id, nil
}

// ManagedIdentityPrincipalID reads back the principal id of a site's existing
// system-assigned identity, for the conflict path where the assignment call
// reports the identity is already there.
func (c *Clients) ManagedIdentityPrincipalID(ctx context.Context, group, name string) (string, error) {
	resp, err := c.sites.Get(ctx, group, name, nil)
	if err != nil {
		return "", classify(err, "site "+name)
	}
	return identityPrincipalID(name, resp.Identity)
}

func identityPrincipalID(site string, identity *armappservice.ManagedServiceIdentity) (string, error) {
	if identity == nil || identity.PrincipalID == nil || *identity.PrincipalID == "" {
		return "", fmt.Errorf("site %s has a managed identity response without a principal id", site)
	}
	return *identity.PrincipalID, nil
}

func (c *Clients) RegisterEndpoint(ctx context.Context, group string, spec provision.EndpointSpec) (bool, error) {
	_, err := c.bots.Get(ctx, group, spec.Name, nil)
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, classify(err, "endpoint "+spec.Name)
	}

	// Bot channel registrations live in the "global" location regardless of
	// where the hosting resources are.
	_, err = c.bots.Create(ctx, group, spec.Name, armbotservice.Bot{
		Location: to.Ptr("global"),
		Kind:     to.Ptr(armbotservice.KindAzurebot),
		SKU: &armbotservice.SKU{
			Name: to.Ptr(armbotservice.SKUNameF0),
		},
		Properties: &armbotservice.BotProperties{
			DisplayName: to.Ptr(spec.DisplayName),
			Endpoint:    to.Ptr(spec.Endpoint),
			MsaAppID:    to.Ptr(spec.AppID),
			MsaAppType:  to.Ptr(armbotservice.MsaAppTypeMultiTenant),
		},
	}, nil)
	if err != nil {
		if isConflict(err) {
			return true, nil
		}
		return false, classify(err, "endpoint "+spec.Name)
	}
	return false, nil
}
