package rbac

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrForbidden is returned when an active, authenticated user does not
	// satisfy the requirement. The message is deliberately generic; the
	// required and held roles go only to the audit log.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrAccountDisabled is returned for users with is_active=false,
	// regardless of what roles they hold.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrTenantMissing is returned when an authenticated user reaches a
	// tenant-scoped check without a tenant ID.
	ErrTenantMissing = errors.New("user has no associated tenant")
)

// UnknownPermissionError indicates a permission absent from the injected
// permission map. This is a server-side configuration fault, not a client
// error, and surfaces as a 500.
type UnknownPermissionError struct {
	Permission Permission
}

func (e *UnknownPermissionError) Error() string {
	return fmt.Sprintf("permission %q is not in the permission map", string(e.Permission))
}

// HTTPStatus maps an authorization error to the response status the
// handlers return for it.
func HTTPStatus(err error) int {
	var unknownPerm *UnknownPermissionError
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, ErrTenantMissing):
		return http.StatusBadRequest
	case errors.As(err, &unknownPerm):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

