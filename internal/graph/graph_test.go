package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeODataLiteral(t *testing.T) {
	assert.Equal(t, "My Agent", escapeODataLiteral("My Agent"))
	assert.Equal(t, "O''Brien''s Agent", escapeODataLiteral("O'Brien's Agent"))
}

func TestScopeRoundTrip(t *testing.T) {
	assert.Equal(t, []string{"User.Read", "Mail.Read"}, splitScopes("User.Read Mail.Read"))
	assert.Equal(t, []string{"User.Read"}, splitScopes("  User.Read  "))
	assert.Empty(t, splitScopes(""))
	assert.Equal(t, "User.Read Mail.Read", joinScopes([]string{"User.Read", "Mail.Read"}))
}

func TestParseInheritable(t *testing.T) {
	data := map[string]any{
		inheritablePermissionsKey: []any{
			map[string]any{
				"resourceAppId": "app-1",
				"scopes":        []any{"User.Read", "Mail.Read"},
			},
			// Malformed entries are skipped, not fatal.
			map[string]any{"scopes": []any{"X"}},
			"not a map",
			map[string]any{"resourceAppId": "app-2"},
		},
	}

	entries := parseInheritable(data)
	require.Len(t, entries, 2)
	assert.Equal(t, "app-1", entries[0].ResourceAppID)
	assert.Equal(t, []string{"User.Read", "Mail.Read"}, entries[0].Scopes)
	assert.Equal(t, "app-2", entries[1].ResourceAppID)
	assert.Empty(t, entries[1].Scopes)

	assert.Nil(t, parseInheritable(nil))
	assert.Nil(t, parseInheritable(map[string]any{inheritablePermissionsKey: "bogus"}))
}

func TestMergeInheritable(t *testing.T) {
	entries := []inheritableEntry{{ResourceAppID: "app-1", Scopes: []string{"A"}}}

	merged := mergeInheritable(entries, inheritableEntry{ResourceAppID: "app-2", Scopes: []string{"B"}})
	require.Len(t, merged, 2)

	merged = mergeInheritable(merged, inheritableEntry{ResourceAppID: "app-1", Scopes: []string{"A", "C"}})
	require.Len(t, merged, 2)
	assert.Equal(t, []string{"A", "C"}, merged[0].Scopes)
}

func TestInheritableEncodeParseRoundTrip(t *testing.T) {
	entries := []inheritableEntry{
		{ResourceAppID: "app-1", Scopes: []string{"User.Read"}},
		{ResourceAppID: "app-2", Scopes: []string{"Tooling.Execute"}},
	}

	got := parseInheritable(map[string]any{inheritablePermissionsKey: encodeInheritable(entries)})
	assert.Equal(t, entries, got)
}
