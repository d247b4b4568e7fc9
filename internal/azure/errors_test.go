package azure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent365/a365ctl/internal/provision"
)

func respErr(status int, code string) error {
	return &azcore.ResponseError{StatusCode: status, ErrorCode: code}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, got error)
	}{
		{
			name: "forbidden",
			err:  respErr(403, "AuthorizationFailed"),
			check: func(t *testing.T, got error) {
				var authErr *provision.AuthorizationError
				require.ErrorAs(t, got, &authErr)
				assert.Equal(t, "plan my-plan", authErr.Resource)
			},
		},
		{
			name: "unauthorized",
			err:  respErr(401, "InvalidAuthenticationToken"),
			check: func(t *testing.T, got error) {
				var authErr *provision.AuthorizationError
				require.ErrorAs(t, got, &authErr)
			},
		},
		{
			name: "not found",
			err:  respErr(404, "ResourceNotFound"),
			check: func(t *testing.T, got error) {
				assert.ErrorIs(t, got, provision.ErrNotFound)
			},
		},
		{
			name: "conflict",
			err:  respErr(409, "Conflict"),
			check: func(t *testing.T, got error) {
				assert.ErrorIs(t, got, provision.ErrConflict)
			},
		},
		{
			name: "quota beats conflict status",
			err:  respErr(409, "SubscriptionIsOverQuotaForSku"),
			check: func(t *testing.T, got error) {
				var quotaErr *provision.QuotaError
				require.ErrorAs(t, got, &quotaErr)
			},
		},
		{
			name: "quota via operation not allowed",
			err:  respErr(400, "OperationNotAllowed"),
			check: func(t *testing.T, got error) {
				var quotaErr *provision.QuotaError
				require.ErrorAs(t, got, &quotaErr)
			},
		},
		{
			name: "sku unavailable",
			err:  respErr(400, "SkuNotAvailable"),
			check: func(t *testing.T, got error) {
				var skuErr *provision.SKUUnavailableError
				require.ErrorAs(t, got, &skuErr)
			},
		},
		{
			name: "unknown response error passes through",
			err:  respErr(500, "InternalServerError"),
			check: func(t *testing.T, got error) {
				var respErr *azcore.ResponseError
				assert.ErrorAs(t, got, &respErr)
			},
		},
		{
			name: "non-response error passes through",
			err:  fmt.Errorf("dial tcp: %w", errors.New("connection refused")),
			check: func(t *testing.T, got error) {
				assert.ErrorContains(t, got, "connection refused")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, classify(tt.err, "plan my-plan"))
		})
	}
}

func TestClassifySiteCreateTreatsConflictAsNameTaken(t *testing.T) {
	got := classifySiteCreate(respErr(409, "Conflict"), "myagent")

	var nameErr *provision.NameTakenError
	require.ErrorAs(t, got, &nameErr)
	assert.Equal(t, "myagent", nameErr.Name)

	// Other statuses fall back to the shared classification.
	assert.ErrorIs(t, classifySiteCreate(respErr(404, "ResourceNotFound"), "myagent"), provision.ErrNotFound)
}

func TestIsNotFoundAndIsConflict(t *testing.T) {
	assert.True(t, isNotFound(respErr(404, "ResourceNotFound")))
	assert.False(t, isNotFound(respErr(409, "Conflict")))
	assert.True(t, isConflict(respErr(409, "Conflict")))
	assert.False(t, isConflict(errors.New("boom")))
}
