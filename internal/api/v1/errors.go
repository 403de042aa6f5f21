package v1

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/reposync/internal/api/common"
	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/scheduler"
	"github.com/stacklok/reposync/internal/sync/state"
)

type queryError struct {
	name  string
	value string
}

func (e *queryError) Error() string {
	return fmt.Sprintf("invalid %s parameter %q", e.name, e.value)
}

// statusFor maps a service error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrExecutionInProgress),
		errors.Is(err, scheduler.ErrLeaderLockHeld),
		errors.Is(err, sync.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, directory.ErrRepositoryNotFound),
		errors.Is(err, state.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, directory.ErrInvalidRepository):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}

	switch sync.KindOf(err) {
	case sync.KindNotFound:
		return http.StatusNotFound
	case sync.KindLockContention:
		return http.StatusConflict
	case sync.KindConfigurationInvalid:
		return http.StatusBadRequest
	case sync.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case sync.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status its kind maps to
func writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", code, "error", err)
	}
	common.WriteErrorResponse(w, err.Error(), code)
}
