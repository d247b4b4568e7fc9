// Package graph adapts the Microsoft Graph SDK to the directory surface the
// provisioner needs: application registrations, service principals, federated
// credentials, delegated permission grants, and client secrets.
package graph

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"github.com/agent365/a365ctl/internal/provision"
)

// GraphScopes is the resource scope requested for every Graph token.
var GraphScopes = []string{"https://graph.microsoft.com/.default"}

// Client implements provision.DirectoryAPI on top of the Graph SDK.
type Client struct {
	sdk *msgraphsdk.GraphServiceClient
}

var _ provision.DirectoryAPI = (*Client)(nil)

// NewClient builds a Graph client from a token credential. The credential
// must carry a signed-in user when sponsor lookup is wanted.
func NewClient(cred azcore.TokenCredential) (*Client, error) {
	sdk, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, GraphScopes)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph client: %w", err)
	}
	return &Client{sdk: sdk}, nil
}

// classify maps a Graph OData error onto the provisioner's error taxonomy.
func classify(err error, resource string) error {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return fmt.Errorf("%s: %w", resource, err)
	}

	code, message := "", ""
	if e := odataErr.GetErrorEscaped(); e != nil {
		if c := e.GetCode(); c != nil {
			code = *c
		}
		if m := e.GetMessage(); m != nil {
			message = *m
		}
	}

	switch {
	case strings.Contains(strings.ToLower(message), "sponsor"):
		return fmt.Errorf("%w: %s", provision.ErrSponsorRejected, message)
	case odataErr.ResponseStatusCode == http.StatusNotFound || code == "Request_ResourceNotFound":
		return provision.ErrNotFound
	case odataErr.ResponseStatusCode == http.StatusConflict || code == "Request_MultipleObjectsWithSameKeyValue":
		return provision.ErrConflict
	case odataErr.ResponseStatusCode == http.StatusUnauthorized || odataErr.ResponseStatusCode == http.StatusForbidden:
		return &provision.AuthorizationError{
			Resource: resource,
			Roles:    []string{"Application Administrator"},
			Detail:   code + ": " + message,
		}
	}
	return fmt.Errorf("%s: %s %s: %w", resource, code, message, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, provision.ErrNotFound)
}

// escapeODataLiteral escapes a string for use inside an OData single-quoted
// literal.
func escapeODataLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// splitScopes turns a grant's space-separated scope field into a list.
func splitScopes(scope string) []string {
	return strings.Fields(scope)
}

// joinScopes is the inverse of splitScopes.
func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
