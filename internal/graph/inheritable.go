package graph

import (
	"context"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/agent365/a365ctl/internal/logging"
)

// inheritablePermissionsKey is the application property that carries the
// permissions sub-agents inherit from the blueprint. It is not part of the
// SDK's typed model yet, so it rides the additional-data bag.
const inheritablePermissionsKey = "inheritablePermissions"

type inheritableEntry struct {
	ResourceAppID string
	Scopes        []string
}

// SetInheritablePermissions merges the entry for resourceAppID into the
// application's inheritable permission list and writes it back.
func (c *Client) SetInheritablePermissions(ctx context.Context, objectID, resourceAppID string, scopes []string) error {
	app, err := c.sdk.Applications().ByApplicationId(objectID).Get(ctx, nil)
	if err != nil {
		return classify(err, "application "+objectID)
	}

	entries := parseInheritable(app.GetAdditionalData())
	entries = mergeInheritable(entries, inheritableEntry{ResourceAppID: resourceAppID, Scopes: scopes})

	patch := models.NewApplication()
	patch.SetAdditionalData(map[string]any{
		inheritablePermissionsKey: encodeInheritable(entries),
	})
	if _, err := c.sdk.Applications().ByApplicationId(objectID).Patch(ctx, patch, nil); err != nil {
		return classify(err, "application "+objectID)
	}
	logging.Debug("set inheritable permissions", "resourceAppId", resourceAppID)
	return nil
}

// InheritableScopes reads back the inheritable scopes recorded for
// resourceAppID. Nil when none are recorded.
func (c *Client) InheritableScopes(ctx context.Context, objectID, resourceAppID string) ([]string, error) {
	app, err := c.sdk.Applications().ByApplicationId(objectID).Get(ctx, nil)
	if err != nil {
		return nil, classify(err, "application "+objectID)
	}
	for _, entry := range parseInheritable(app.GetAdditionalData()) {
		if entry.ResourceAppID == resourceAppID {
			return entry.Scopes, nil
		}
	}
	return nil, nil
}

// parseInheritable decodes the additional-data representation. Entries with
// an unexpected shape are skipped rather than failing the read.
func parseInheritable(data map[string]any) []inheritableEntry {
	raw, ok := data[inheritablePermissionsKey].([]any)
	if !ok {
		return nil
	}
	var entries []inheritableEntry
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		appID, ok := m["resourceAppId"].(string)
		if !ok || appID == "" {
			continue
		}
		entry := inheritableEntry{ResourceAppID: appID}
		if scopes, ok := m["scopes"].([]any); ok {
			for _, s := range scopes {
				if v, ok := s.(string); ok {
					entry.Scopes = append(entry.Scopes, v)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// mergeInheritable replaces the entry with the same resource app id, or
// appends when absent.
func mergeInheritable(entries []inheritableEntry, entry inheritableEntry) []inheritableEntry {
	for i, existing := range entries {
		if existing.ResourceAppID == entry.ResourceAppID {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}

func encodeInheritable(entries []inheritableEntry) []any {
	out := make([]any, 0, len(entries))
	for _, entry := range entries {
		scopes := make([]any, 0, len(entry.Scopes))
		for _, s := range entry.Scopes {
			scopes = append(scopes, s)
		}
		out = append(out, map[string]any{
			"resourceAppId": entry.ResourceAppID,
			"scopes":        scopes,
		})
	}
	return out
}
