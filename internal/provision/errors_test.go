package provision

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessagesCarryRemediation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "authorization",
			err:  &AuthorizationError{Resource: "site", Roles: []string{"Contributor"}},
			want: []string{"Contributor", "site"},
		},
		{
			name: "name taken",
			err:  &NameTakenError{Name: "myagent"},
			want: []string{"myagent", "siteName", "a365.yaml"},
		},
		{
			name: "sku unavailable",
			err:  &SKUUnavailableError{SKU: "B1", Location: "westeurope"},
			want: []string{"B1", "westeurope"},
		},
		{
			name: "propagation timeout",
			err:  &PropagationTimeoutError{Resource: "app service plan", Attempts: 4},
			want: []string{"app service plan", "4"},
		},
		{
			name: "endpoint name",
			err:  &EndpointNameError{Input: "a.example.com", Name: "a"},
			want: []string{"a.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				assert.Contains(t, tt.err.Error(), want)
			}
		})
	}
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	inner := &QuotaError{Resource: "plan"}
	err := error(&PlanError{Plan: "my-plan", Location: "westeurope", SKU: "B1", Err: inner})

	var quotaErr *QuotaError
	assert.ErrorAs(t, err, &quotaErr)

	berr := error(&BlueprintError{DisplayName: "My Agent", Err: ErrNotFound})
	assert.ErrorIs(t, berr, ErrNotFound)

	cerr := error(&ConsentError{Resource: "Microsoft Graph", Err: ErrConflict})
	assert.ErrorIs(t, cerr, ErrConflict)
}

func TestTruncateDetail(t *testing.T) {
	long := strings.Repeat("x", 1000)
	got := truncateDetail(long)
	assert.LessOrEqual(t, len(got), 310)
	assert.True(t, strings.HasPrefix(got, "xxx"))
	assert.Equal(t, "short", truncateDetail("short"))
	assert.False(t, errors.Is(ErrNotFound, ErrConflict))
}
