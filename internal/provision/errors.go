package provision

import (
	"errors"
	"fmt"
)

// Sentinel errors adapters use to classify provider responses. Provisioners
// translate them into retry decisions; they never reach the user directly.
var (
	// ErrNotFound means the target object is not (yet) visible. On a read
	// immediately after a create this is expected propagation delay.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict means the resource already exists or is already in the
	// requested state. Creation call sites treat it as success.
	ErrConflict = errors.New("resource already exists")
	// ErrSponsorRejected means the directory rejected the sponsor binding
	// field on application creation. Triggers exactly one retry without it.
	ErrSponsorRejected = errors.New("sponsor binding rejected")
)

const maxDetailLen = 300

// truncateDetail keeps raw provider error text readable in summaries.
func truncateDetail(detail string) string {
	if len(detail) > maxDetailLen {
		return detail[:maxDetailLen] + "..."
	}
	return detail
}

// AuthorizationError is a permission failure against the cloud or directory
// API. Always fatal to the step that hit it.
type AuthorizationError struct {
	Resource string
	Roles    []string
	Detail   string
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("not authorized to configure %s", e.Resource)
	if len(e.Roles) > 0 {
		msg += fmt.Sprintf(" (requires %v)", e.Roles)
	}
	if e.Detail != "" {
		msg += ": " + truncateDetail(e.Detail)
	}
	return msg
}

// QuotaError means the subscription cannot fit another instance of the
// resource.
type QuotaError struct {
	Resource string
	Detail   string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded creating %s: %s", e.Resource, truncateDetail(e.Detail))
}

// SKUUnavailableError means the requested tier is not offered in the region.
type SKUUnavailableError struct {
	SKU      string
	Location string
	Detail   string
}

func (e *SKUUnavailableError) Error() string {
	return fmt.Sprintf("sku %q is not available in %s: %s", e.SKU, e.Location, truncateDetail(e.Detail))
}

// NameTakenError means a globally-unique hosting name is owned by someone
// else. This is a user input error, not a transient fault.
type NameTakenError struct {
	Name string
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("the name %q is already taken; hosting names are globally unique, pick a different siteName in a365.yaml", e.Name)
}

// PlanError wraps a fatal compute-plan failure with the identifiers the user
// needs to act on it.
type PlanError struct {
	Plan     string
	Location string
	SKU      string
	Err      error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("failed to provision compute plan %q (location %s, tier %s): %v", e.Plan, e.Location, e.SKU, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// PropagationTimeoutError means a resource was created but never became
// visible within the retry ceiling. Distinct from not-found: the create call
// succeeded.
type PropagationTimeoutError struct {
	Resource string
	Attempts int
}

func (e *PropagationTimeoutError) Error() string {
	return fmt.Sprintf("%s was created but did not become visible after %d checks; it may still be propagating, re-run the failed step in a few minutes", e.Resource, e.Attempts)
}

// BlueprintError is fatal to the whole pipeline: nothing downstream can run
// without the application identity.
type BlueprintError struct {
	DisplayName string
	Err         error
}

func (e *BlueprintError) Error() string {
	return fmt.Sprintf("failed to provision blueprint %q: %v", e.DisplayName, e.Err)
}

func (e *BlueprintError) Unwrap() error { return e.Err }

// EndpointNameError means the sanitized endpoint name violates provider
// constraints.
type EndpointNameError struct {
	Input string
	Name  string
}

func (e *EndpointNameError) Error() string {
	return fmt.Sprintf("endpoint name %q derived from %q is too short (minimum 4 characters after sanitization); choose a different name", e.Name, e.Input)
}

// ConsentError is fatal for the resource whose grant failed, but not for
// independent pipeline steps.
type ConsentError struct {
	Resource string
	Err      error
}

func (e *ConsentError) Error() string {
	return fmt.Sprintf("failed to grant permissions on %s: %v", e.Resource, e.Err)
}

func (e *ConsentError) Unwrap() error { return e.Err }
