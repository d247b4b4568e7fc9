package azure

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/agent365/a365ctl/internal/provision"
)

// classify maps an ARM response error onto the provisioner's error taxonomy.
// Anything unrecognized is passed through wrapped with the resource it hit.
func classify(err error, resource string) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return fmt.Errorf("%s: %w", resource, err)
	}

	switch {
	// Error codes first: quota violations arrive under several HTTP
	// statuses, including 409.
	case isQuotaCode(respErr.ErrorCode):
		return &provision.QuotaError{Resource: resource, Detail: respErr.ErrorCode}
	case isSKUCode(respErr.ErrorCode):
		return &provision.SKUUnavailableError{Detail: respErr.ErrorCode}
	case respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden:
		return &provision.AuthorizationError{
			Resource: resource,
			Roles:    []string{"Contributor"},
			Detail:   respErr.ErrorCode,
		}
	case respErr.StatusCode == http.StatusNotFound:
		return provision.ErrNotFound
	case respErr.StatusCode == http.StatusConflict:
		return provision.ErrConflict
	}
	return fmt.Errorf("%s: %w", resource, err)
}

// classifySiteCreate is classify plus the site-specific conflict meaning: a
// 409 on create means the globally-unique hostname belongs to someone else.
func classifySiteCreate(err error, name string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
		return &provision.NameTakenError{Name: name}
	}
	return classify(err, "site "+name)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict
}

func isQuotaCode(code string) bool {
	c := strings.ToLower(code)
	return strings.Contains(c, "quota") || c == "operationnotallowed"
}

func isSKUCode(code string) bool {
	switch code {
	case "SkuNotAvailable", "LocationNotAvailableForResourceType", "InvalidSkuName":
		return true
	}
	return false
}
