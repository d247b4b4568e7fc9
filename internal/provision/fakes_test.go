package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/agent365/a365ctl/internal/config"
)

// fakeCloud is an in-memory CloudAPI with injectable errors and propagation
// lag.
type fakeCloud struct {
	subErr error

	groups map[string]bool
	plans  map[string]bool
	sites  map[string]bool

	runtimes   map[string]string
	principals map[string]string
	endpoints  map[string]string

	createPlanErr error
	createSiteErr error
	assignErr     error
	endpointErr   error

	// planLag/siteLag make the existence probe miss that many times after a
	// create, simulating eventual consistency.
	planLag int
	siteLag int

	assignCalls   int
	endpointCalls int
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		groups:     map[string]bool{},
		plans:      map[string]bool{},
		sites:      map[string]bool{},
		runtimes:   map[string]string{},
		principals: map[string]string{},
		endpoints:  map[string]string{},
	}
}

func (c *fakeCloud) SetSubscription(ctx context.Context, id string) error { return c.subErr }

func (c *fakeCloud) ResourceGroupExists(ctx context.Context, name string) (bool, error) {
	return c.groups[name], nil
}

func (c *fakeCloud) CreateResourceGroup(ctx context.Context, name, location string) error {
	c.groups[name] = true
	return nil
}

func (c *fakeCloud) PlanExists(ctx context.Context, group, name string) (bool, error) {
	if c.plans[group+"/"+name] && c.planLag > 0 {
		c.planLag--
		return false, nil
	}
	return c.plans[group+"/"+name], nil
}

func (c *fakeCloud) CreatePlan(ctx context.Context, group, name, location, sku string) error {
	if c.createPlanErr != nil {
		return c.createPlanErr
	}
	c.plans[group+"/"+name] = true
	return nil
}

func (c *fakeCloud) SiteExists(ctx context.Context, group, name string) (bool, error) {
	if c.sites[group+"/"+name] && c.siteLag > 0 {
		c.siteLag--
		return false, nil
	}
	return c.sites[group+"/"+name], nil
}

func (c *fakeCloud) CreateSite(ctx context.Context, group, name, location, plan, runtime string) error {
	if c.createSiteErr != nil {
		return c.createSiteErr
	}
	c.sites[group+"/"+name] = true
	c.runtimes[group+"/"+name] = runtime
	return nil
}

func (c *fakeCloud) SetSiteRuntime(ctx context.Context, group, name, runtime string) error {
	c.runtimes[group+"/"+name] = runtime
	return nil
}

func (c *fakeCloud) AssignManagedIdentity(ctx context.Context, group, name string) (string, error) {
	c.assignCalls++
	if c.assignErr != nil {
		return "", c.assignErr
	}
	key := group + "/" + name
	if c.principals[key] == "" {
		c.principals[key] = "principal-" + name
	}
	return c.principals[key], nil
}

func (c *fakeCloud) ManagedIdentityPrincipalID(ctx context.Context, group, name string) (string, error) {
	id := c.principals[group+"/"+name]
	if id == "" {
		return "", ErrNotFound
	}
	return id, nil
}

func (c *fakeCloud) RegisterEndpoint(ctx context.Context, group string, spec EndpointSpec) (bool, error) {
	c.endpointCalls++
	if c.endpointErr != nil {
		return false, c.endpointErr
	}
	if _, ok := c.endpoints[spec.Name]; ok {
		return true, nil
	}
	c.endpoints[spec.Name] = spec.Endpoint
	return false, nil
}

// fakeDirectory is an in-memory DirectoryAPI.
type fakeDirectory struct {
	apps    map[string]*Application // keyed by object id
	sps     map[string]*ServicePrincipal
	fics    map[string]bool     // objectID|subject
	grants  map[string][]string // clientSPID|resourceSPID
	inherit map[string][]string // objectID|resourceAppID
	uris    map[string]string

	findErr          error
	createAppErr     error
	sponsorRejects   bool
	appLag           int // GetApplication misses after create
	spCreateLag      int // CreateServicePrincipal not-found responses
	ficCreateLag     int
	grantErr         error
	setInheritErr    error
	inheritVerifyLag int
	secretValid      bool
	validateErr      error
	addSecretErr     error
	userErr          error
	grantAppearLag   int // GrantedScopes returns empty this many times

	createAppCalls int
	createFICCalls int
	addSecretCalls int
	grantCalls     int
	seq            int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		apps:        map[string]*Application{},
		sps:         map[string]*ServicePrincipal{},
		fics:        map[string]bool{},
		grants:      map[string][]string{},
		inherit:     map[string][]string{},
		uris:        map[string]string{},
		secretValid: true,
	}
}

func (d *fakeDirectory) FindApplicationByName(ctx context.Context, displayName string) (*Application, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	for _, app := range d.apps {
		if app.DisplayName == displayName {
			return app, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) GetApplication(ctx context.Context, objectID string) (*Application, error) {
	if d.appLag > 0 {
		d.appLag--
		return nil, ErrNotFound
	}
	app, ok := d.apps[objectID]
	if !ok {
		return nil, ErrNotFound
	}
	return app, nil
}

func (d *fakeDirectory) CreateApplication(ctx context.Context, params CreateApplicationParams) (*Application, error) {
	d.createAppCalls++
	if d.createAppErr != nil {
		return nil, d.createAppErr
	}
	if d.sponsorRejects && params.SponsorUserID != "" {
		return nil, fmt.Errorf("invalid sponsor reference: %w", ErrSponsorRejected)
	}
	d.seq++
	app := &Application{
		AppID:       fmt.Sprintf("app-%d", d.seq),
		ObjectID:    fmt.Sprintf("obj-%d", d.seq),
		DisplayName: params.DisplayName,
	}
	d.apps[app.ObjectID] = app
	return app, nil
}

func (d *fakeDirectory) SetIdentifierURI(ctx context.Context, objectID, uri string) error {
	d.uris[objectID] = uri
	return nil
}

func (d *fakeDirectory) GetServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error) {
	sp, ok := d.sps[appID]
	if !ok {
		return nil, nil
	}
	return sp, nil
}

func (d *fakeDirectory) CreateServicePrincipal(ctx context.Context, appID string) (*ServicePrincipal, error) {
	if d.spCreateLag > 0 {
		d.spCreateLag--
		return nil, ErrNotFound
	}
	if sp, ok := d.sps[appID]; ok {
		return sp, nil
	}
	sp := &ServicePrincipal{ID: "sp-" + appID, AppID: appID}
	d.sps[appID] = sp
	return sp, nil
}

func (d *fakeDirectory) FederatedCredentialExists(ctx context.Context, objectID, subject string) (bool, error) {
	return d.fics[objectID+"|"+subject], nil
}

func (d *fakeDirectory) CreateFederatedCredential(ctx context.Context, objectID string, spec FederatedCredentialSpec) error {
	d.createFICCalls++
	if d.ficCreateLag > 0 {
		d.ficCreateLag--
		return ErrNotFound
	}
	d.fics[objectID+"|"+spec.Subject] = true
	return nil
}

func (d *fakeDirectory) GrantedScopes(ctx context.Context, clientSPID, resourceSPID string) ([]string, error) {
	if d.grantAppearLag > 0 {
		d.grantAppearLag--
		return nil, nil
	}
	return d.grants[clientSPID+"|"+resourceSPID], nil
}

func (d *fakeDirectory) GrantScopes(ctx context.Context, clientSPID, resourceSPID string, scopes []string) error {
	d.grantCalls++
	if d.grantErr != nil {
		return d.grantErr
	}
	d.grants[clientSPID+"|"+resourceSPID] = scopes
	return nil
}

func (d *fakeDirectory) RegisterRequiredScopes(ctx context.Context, objectID, resourceAppID string, scopes []string) error {
	return nil
}

func (d *fakeDirectory) SetInheritablePermissions(ctx context.Context, objectID, resourceAppID string, scopes []string) error {
	if d.setInheritErr != nil {
		return d.setInheritErr
	}
	d.inherit[objectID+"|"+resourceAppID] = scopes
	return nil
}

func (d *fakeDirectory) InheritableScopes(ctx context.Context, objectID, resourceAppID string) ([]string, error) {
	if d.inheritVerifyLag > 0 {
		d.inheritVerifyLag--
		return nil, nil
	}
	return d.inherit[objectID+"|"+resourceAppID], nil
}

func (d *fakeDirectory) AddClientSecret(ctx context.Context, objectID, displayName string) (string, error) {
	d.addSecretCalls++
	if d.addSecretErr != nil {
		return "", d.addSecretErr
	}
	return fmt.Sprintf("secret-%d", d.addSecretCalls), nil
}

func (d *fakeDirectory) ValidateClientSecret(ctx context.Context, tenantID, appID, secret string) (bool, error) {
	if d.validateErr != nil {
		return false, d.validateErr
	}
	return d.secretValid && strings.HasPrefix(secret, "secret-"), nil
}

func (d *fakeDirectory) CurrentUserID(ctx context.Context) (string, error) {
	if d.userErr != nil {
		return "", d.userErr
	}
	return "user-1", nil
}

// grantEverything pre-approves all grants the moment they are polled for, so
// blueprint consent never blocks in tests.
func (d *fakeDirectory) grantEverything(clientSPID, resourceSPID string, scopes []string) {
	d.grants[clientSPID+"|"+resourceSPID] = scopes
}

type fakePrompter struct {
	urls    []string
	openErr error
	// grantOnOpen wires the prompter to a directory so that "opening" the
	// consent URL immediately records the grant, like an instant admin.
	grantOnOpen func()
}

func (p *fakePrompter) OpenConsentURL(url string) error {
	p.urls = append(p.urls, url)
	if p.grantOnOpen != nil {
		p.grantOnOpen()
	}
	return p.openErr
}

type memPersister struct {
	saves int
	last  *config.Config
	err   error
}

func (m *memPersister) Save(cfg *config.Config) error {
	m.saves++
	m.last = cfg
	return m.err
}
