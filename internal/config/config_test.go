package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStatic() Static {
	return Static{
		TenantID:       "11111111-1111-1111-1111-111111111111",
		SubscriptionID: "22222222-2222-2222-2222-222222222222",
		ResourceGroup:  "my-agents",
		Location:       "westeurope",
		PlanName:       "my-plan",
		SiteName:       "myagent",
		DisplayName:    "My Agent",
		Hosting:        HostingManaged,
	}
}

func TestMergeSplitRoundTrip(t *testing.T) {
	static := validStatic()
	now := time.Now().UTC()
	dynamic := Dynamic{
		ManagedIdentityPrincipalID: "mi-principal",
		AppID:                      "app-id",
		AppObjectID:                "app-object-id",
		ServicePrincipalID:         "sp-id",
		ClientSecret:               "s3cret",
		MessagingEndpoint:          "https://myagent.azurewebsites.net/api/messages",
		Consents: []ResourceConsent{{
			Resource:       "Microsoft Graph",
			AppID:          "00000003-0000-0000-c000-000000000000",
			Scopes:         []string{"User.Read"},
			ConsentGranted: true,
			ConsentTime:    &now,
		}},
	}

	cfg := Merge(static, dynamic)
	assert.Equal(t, "My Agent", cfg.DisplayName)
	assert.Equal(t, "app-id", cfg.AppID)

	out := Split(cfg)
	assert.Equal(t, dynamic, out)
}

func TestConsentCreatesRecordOnce(t *testing.T) {
	cfg := Merge(validStatic(), Dynamic{})

	rec := cfg.Consent("Microsoft Graph", "00000003-0000-0000-c000-000000000000")
	rec.ConsentGranted = true

	again := cfg.Consent("Microsoft Graph", "00000003-0000-0000-c000-000000000000")
	assert.True(t, again.ConsentGranted)
	assert.Len(t, cfg.Consents, 1)
}

func TestStoreLoadMissingStatic(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load()
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeStatic(t, dir, `
tenantId: 11111111-1111-1111-1111-111111111111
subscriptionId: 22222222-2222-2222-2222-222222222222
resourceGroup: my-agents
location: westeurope
planName: my-plan
siteName: myagent
displayName: My Agent
hosting: managed
resources:
  - name: Microsoft Graph
    appId: 00000003-0000-0000-c000-000000000000
    scopes: [User.Read]
`)

	store := NewStore(dir)
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "My Agent", cfg.DisplayName)
	assert.True(t, cfg.ManagedHosting())
	// Defaults applied.
	assert.Equal(t, "NODE|20-lts", cfg.RuntimeStack)
	assert.Equal(t, "B1", cfg.PlanSKU)
	// Fresh project: dynamic layer absent is valid.
	assert.Empty(t, cfg.AppID)

	cfg.AppID = "app-id"
	cfg.ManagedIdentityPrincipalID = "mi-principal"
	require.NoError(t, store.Save(cfg))

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "app-id", reloaded.AppID)
	assert.Equal(t, "mi-principal", reloaded.ManagedIdentityPrincipalID)
}

func TestStoreValidatesStatic(t *testing.T) {
	dir := t.TempDir()
	writeStatic(t, dir, `
tenantId: not-a-uuid
subscriptionId: 22222222-2222-2222-2222-222222222222
resourceGroup: my-agents
location: westeurope
displayName: My Agent
hosting: managed
planName: p
siteName: s
`)

	_, err := NewStore(dir).Load()
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestStoreDynamicRegenerable(t *testing.T) {
	// Deleting the dynamic layer must be safe: load succeeds with an empty
	// record.
	dir := t.TempDir()
	writeStatic(t, dir, `
tenantId: 11111111-1111-1111-1111-111111111111
subscriptionId: 22222222-2222-2222-2222-222222222222
resourceGroup: my-agents
location: westeurope
planName: my-plan
siteName: myagent
displayName: My Agent
hosting: managed
`)
	store := NewStore(dir)

	cfg, err := store.Load()
	require.NoError(t, err)
	cfg.AppID = "app-id"
	require.NoError(t, store.Save(cfg))

	require.NoError(t, os.RemoveAll(filepath.Join(dir, DynamicDirName)))

	cfg, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AppID)
}

func TestStoreLock(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Lock())
	assert.Error(t, store.Lock())
	require.NoError(t, store.Unlock())
	assert.NoError(t, store.Lock())
	require.NoError(t, store.Unlock())
}

func writeStatic(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StaticFileName), []byte(content), 0644))
}
