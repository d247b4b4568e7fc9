package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent365/a365ctl/internal/config"
)

type pipelineFixture struct {
	cloud     *fakeCloud
	dir       *fakeDirectory
	prompter  *fakePrompter
	persister *memPersister
	orch      *Orchestrator
}

func newPipelineFixture() *pipelineFixture {
	cloud := newFakeCloud()
	dir := newFakeDirectory()
	prompter := &fakePrompter{}
	instantConsent(dir, prompter, "sp-app-1")
	persister := &memPersister{}

	bp := newBlueprintProvisioner(dir, prompter)
	bp.Persist = persister.Save

	return &pipelineFixture{
		cloud:     cloud,
		dir:       dir,
		prompter:  prompter,
		persister: persister,
		orch: &Orchestrator{
			Infra:       &InfraProvisioner{Cloud: cloud, Verify: testPolicy(3)},
			Blueprint:   bp,
			Permissions: &PermissionConfigurator{Dir: dir, Verify: testPolicy(3)},
			Endpoint:    &EndpointRegistrar{Cloud: cloud},
			Persist:     persister,
		},
	}
}

func TestPipelineFreshRun(t *testing.T) {
	f := newPipelineFixture()
	cfg := managedConfig()

	res := f.orch.Run(context.Background(), cfg)

	assert.False(t, res.Failed())
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Steps, 5) // infra, blueprint, two permission sets, endpoint

	for _, step := range res.Steps {
		assert.Equal(t, StatusOK, step.Status, step.Name)
		assert.False(t, step.AlreadyExisted, step.Name)
	}

	// Every provisioned artifact landed in the dynamic layer.
	assert.NotEmpty(t, cfg.ManagedIdentityPrincipalID)
	assert.Equal(t, "app-1", cfg.AppID)
	assert.Equal(t, "sp-app-1", cfg.ServicePrincipalID)
	assert.NotEmpty(t, cfg.ClientSecret)
	assert.Equal(t, "https://myagent.azurewebsites.net/api/messages", cfg.MessagingEndpoint)
}

func TestPipelineRerunReportsExisting(t *testing.T) {
	f := newPipelineFixture()
	f.dir.secretValid = true
	cfg := managedConfig()

	first := f.orch.Run(context.Background(), cfg)
	require.False(t, first.Failed())

	second := f.orch.Run(context.Background(), cfg)
	require.False(t, second.Failed())
	assert.Empty(t, second.Errors)

	infra, ok := second.Step(StepInfra)
	require.True(t, ok)
	assert.True(t, infra.AlreadyExisted)

	bp, ok := second.Step(StepBlueprint)
	require.True(t, ok)
	assert.True(t, bp.AlreadyExisted)

	ep, ok := second.Step(StepEndpoint)
	require.True(t, ok)
	assert.True(t, ep.AlreadyExisted)

	// No duplicate resources were created on the second pass.
	assert.Equal(t, 1, f.dir.createAppCalls)
	assert.Equal(t, 1, f.dir.addSecretCalls)
	assert.Len(t, f.cloud.endpoints, 1)
}

func TestPipelinePermissionFailureDoesNotAbort(t *testing.T) {
	f := newPipelineFixture()
	cfg := managedConfig()
	cfg.Resources = []config.ResourceSpec{
		{Name: "CRM", AppID: "appA", Scopes: []string{"Crm.Read"}},
		{Name: "Search", AppID: "appB", Scopes: []string{"Search.Query"}},
	}

	// CRM needs a new grant and the grant call fails; Search is already
	// covered so it never reaches the failing call.
	f.dir.grantErr = assert.AnError
	f.dir.grantEverything("sp-app-1", "sp-appB", []string{"Search.Query"})

	res := f.orch.Run(context.Background(), cfg)

	require.Len(t, res.Errors, 1)
	assert.True(t, res.Failed())

	crm, ok := res.Step("permissions:CRM")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, crm.Status)
	assert.Equal(t, "a365ctl permissions", crm.Remedy)

	// The later permission step and the endpoint step still ran.
	search, ok := res.Step("permissions:Search")
	require.True(t, ok)
	assert.Equal(t, StatusOK, search.Status)

	ep, ok := res.Step(StepEndpoint)
	require.True(t, ok)
	assert.Equal(t, StatusOK, ep.Status)
	assert.NotEmpty(t, cfg.MessagingEndpoint)
}

func TestPipelineInfraFailureSkipsRemainingSteps(t *testing.T) {
	f := newPipelineFixture()
	f.cloud.createSiteErr = &NameTakenError{Name: "myagent"}
	cfg := managedConfig()

	res := f.orch.Run(context.Background(), cfg)

	require.True(t, res.Failed())
	require.Len(t, res.Errors, 1)

	infra, ok := res.Step(StepInfra)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, infra.Status)
	assert.Equal(t, "a365ctl infra", infra.Remedy)

	for _, name := range []string{StepBlueprint, "permissions:Microsoft Graph", "permissions:Agent Tooling", StepEndpoint} {
		step, ok := res.Step(name)
		require.True(t, ok, name)
		assert.Equal(t, StatusSkipped, step.Status, name)
	}

	// The directory was never touched.
	assert.Zero(t, f.dir.createAppCalls)
	// Partial infra state was still persisted for the next attempt.
	assert.NotZero(t, f.persister.saves)
}

func TestPipelineEndpointFailureIsWarningByDefault(t *testing.T) {
	f := newPipelineFixture()
	f.cloud.endpointErr = assert.AnError
	cfg := managedConfig()

	res := f.orch.Run(context.Background(), cfg)

	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.Warnings)

	ep, ok := res.Step(StepEndpoint)
	require.True(t, ok)
	assert.Equal(t, StatusWarn, ep.Status)
	assert.Equal(t, "a365ctl endpoint", ep.Remedy)
}

func TestPipelineEndpointFailureFatalWhenStandalone(t *testing.T) {
	f := newPipelineFixture()
	f.cloud.endpointErr = assert.AnError
	f.orch.EndpointFatal = true
	cfg := managedConfig()

	res := f.orch.Run(context.Background(), cfg)

	assert.True(t, res.Failed())
	ep, ok := res.Step(StepEndpoint)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, ep.Status)
}

func TestPipelinePersistsAfterEveryStep(t *testing.T) {
	f := newPipelineFixture()
	cfg := managedConfig()

	res := f.orch.Run(context.Background(), cfg)
	require.False(t, res.Failed())

	// One save per pipeline step, plus the immediate save after the client
	// secret was minted inside the blueprint step.
	assert.Equal(t, 6, f.persister.saves)
	assert.Equal(t, cfg, f.persister.last)
}

func TestPipelinePersistFailureIsWarning(t *testing.T) {
	f := newPipelineFixture()
	f.persister.err = assert.AnError
	// An existing blueprint with a valid secret keeps the failure out of the
	// secret-minting path, where losing the save would be fatal instead.
	existingBlueprint(f.dir)
	f.dir.secretValid = true
	cfg := managedConfig()
	cfg.ClientSecret = "secret-1"

	res := f.orch.Run(context.Background(), cfg)

	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.Warnings)
}
