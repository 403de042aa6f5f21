// Package v1 provides the operator REST API for the scheduler, repository
// syncs and notification settings.
package v1

//go:generate mockgen -destination=mocks/mock_routes.go -package=mocks -source=routes.go SchedulerService,SyncCanceller,NotificationConfigStore,KeyStore

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/reposync/internal/api/common"
	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/scheduler"
	"github.com/stacklok/reposync/internal/sync/state"
)

const (
	defaultJobLimit       = 20
	maxJobLimit           = 100
	defaultExecutionLimit = 20
	maxExecutionLimit     = 100

	// maxBodyBytes bounds configuration request bodies
	maxBodyBytes = 64 << 10
)

// SchedulerService is the part of the scheduler exposed to operators
type SchedulerService interface {
	Status(ctx context.Context) (*status.SchedulerStatus, error)
	Config() scheduler.Config
	UpdateConfig(ctx context.Context, cfg scheduler.Config) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RunNow(ctx context.Context) (*status.Execution, error)
	Executions(ctx context.Context, limit int) ([]*status.Execution, error)
	RequestSync(ctx context.Context, repositoryID string) error
}

// SyncCanceller cancels the active sync of a repository
type SyncCanceller interface {
	CancelSync(ctx context.Context, repositoryID string) (*sync.Job, error)
}

// NotificationConfigStore reads and writes the notification configuration
type NotificationConfigStore interface {
	Load(ctx context.Context) (notify.Config, error)
	Save(ctx context.Context, cfg notify.Config) error
}

// KeyStore enumerates and removes store keys
type KeyStore interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

// Dependencies are the services behind the operator API
type Dependencies struct {
	Scheduler     SchedulerService
	Syncs         SyncCanceller
	Jobs          state.JobService
	Directory     directory.Directory
	Notifications NotificationConfigStore

	// Keys and KeyPattern back the debug endpoints. They are not mounted when Keys is nil.
	Keys       KeyStore
	KeyPattern string

	// RunLimiter throttles manual batch runs. Nil disables throttling.
	RunLimiter *rate.Limiter
}

// Routes holds the dependencies of the operator API handlers
type Routes struct {
	deps Dependencies
}

// Router returns an HTTP handler for the operator API
func Router(deps Dependencies) http.Handler {
	routes := &Routes{deps: deps}
	r := chi.NewRouter()

	r.Route("/scheduler", func(r chi.Router) {
		r.Post("/", routes.startScheduler)
		r.Delete("/", routes.stopScheduler)
		r.Get("/status", routes.getSchedulerStatus)
		r.Post("/run", routes.runScheduler)
		r.Get("/config", routes.getSchedulerConfig)
		r.Put("/config", routes.updateSchedulerConfig)
		r.Get("/executions", routes.listExecutions)
	})

	r.Route("/repositories/{id}/sync", func(r chi.Router) {
		r.Get("/", routes.getRepositorySync)
		r.Post("/", routes.requestRepositorySync)
		r.Delete("/", routes.cancelRepositorySync)
	})

	r.Get("/notifications/config", routes.getNotificationConfig)
	r.Put("/notifications/config", routes.updateNotificationConfig)

	if deps.Keys != nil {
		r.Get("/debug/keys", routes.listKeys)
		r.Delete("/debug/keys", routes.deleteKeys)
	}

	return r
}

// getSchedulerStatus handles GET /api/v1/scheduler/status
func (routes *Routes) getSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := routes.deps.Scheduler.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, SchedulerStatusResponse{
		SchedulerStatus: st,
		Config:          schedulerConfigToResponse(routes.deps.Scheduler.Config()),
	}, http.StatusOK)
}

// runScheduler handles POST /api/v1/scheduler/run.
// The batch continues in the background; the response carries its summary as it starts.
func (routes *Routes) runScheduler(w http.ResponseWriter, r *http.Request) {
	if l := routes.deps.RunLimiter; l != nil && !l.Allow() {
		common.WriteErrorResponse(w, "too many manual runs, try again later", http.StatusTooManyRequests)
		return
	}

	execution, err := routes.deps.Scheduler.RunNow(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, execution, http.StatusAccepted)
}

// startScheduler handles POST /api/v1/scheduler
func (routes *Routes) startScheduler(w http.ResponseWriter, r *http.Request) {
	if err := routes.deps.Scheduler.Start(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	routes.getSchedulerStatus(w, r)
}

// stopScheduler handles DELETE /api/v1/scheduler
func (routes *Routes) stopScheduler(w http.ResponseWriter, r *http.Request) {
	if err := routes.deps.Scheduler.Stop(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	routes.getSchedulerStatus(w, r)
}

// getSchedulerConfig handles GET /api/v1/scheduler/config
func (routes *Routes) getSchedulerConfig(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, schedulerConfigToResponse(routes.deps.Scheduler.Config()), http.StatusOK)
}

// updateSchedulerConfig handles PUT /api/v1/scheduler/config
func (routes *Routes) updateSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	var update SchedulerConfigUpdate
	if !decodeBody(w, r, &update) {
		return
	}

	cfg, err := update.apply(routes.deps.Scheduler.Config())
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := routes.deps.Scheduler.UpdateConfig(r.Context(), cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, schedulerConfigToResponse(routes.deps.Scheduler.Config()), http.StatusOK)
}

// listExecutions handles GET /api/v1/scheduler/executions
func (routes *Routes) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultExecutionLimit, 1, maxExecutionLimit)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	executions, err := routes.deps.Scheduler.Executions(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if executions == nil {
		executions = []*status.Execution{}
	}
	common.WriteJSONResponse(w, ExecutionListResponse{Executions: executions, Count: len(executions)}, http.StatusOK)
}

// getRepositorySync handles GET /api/v1/repositories/{id}/sync
func (routes *Routes) getRepositorySync(w http.ResponseWriter, r *http.Request) {
	repositoryID, err := common.RepositoryIDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := intQuery(r, "offset", 0, 0, -1)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := intQuery(r, "limit", defaultJobLimit, 1, maxJobLimit)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := routes.deps.Jobs.GetRepositoryState(r.Context(), repositoryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	jobs, total, err := routes.deps.Jobs.ListRepositoryJobs(r.Context(), repositoryID, offset, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*sync.Job{}
	}

	common.WriteJSONResponse(w, RepositorySyncResponse{
		State:    st,
		Jobs:     jobs,
		Metadata: PageMetadata{Offset: offset, Limit: limit, Total: total},
	}, http.StatusOK)
}

// requestRepositorySync handles POST /api/v1/repositories/{id}/sync.
// The repository is synchronized by the next scheduler batch.
func (routes *Routes) requestRepositorySync(w http.ResponseWriter, r *http.Request) {
	repositoryID, err := common.RepositoryIDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := routes.deps.Directory.GetRepository(r.Context(), repositoryID); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := routes.deps.Scheduler.RequestSync(r.Context(), repositoryID); err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, SyncRequestResponse{RepositoryID: repositoryID, Queued: true}, http.StatusAccepted)
}

// cancelRepositorySync handles DELETE /api/v1/repositories/{id}/sync
func (routes *Routes) cancelRepositorySync(w http.ResponseWriter, r *http.Request) {
	repositoryID, err := common.RepositoryIDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := routes.deps.Syncs.CancelSync(r.Context(), repositoryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, CancelResponse{
		RepositoryID: repositoryID,
		Cancelled:    job != nil,
		Job:          job,
	}, http.StatusOK)
}

// getNotificationConfig handles GET /api/v1/notifications/config
func (routes *Routes) getNotificationConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := routes.deps.Notifications.Load(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, cfg, http.StatusOK)
}

// updateNotificationConfig handles PUT /api/v1/notifications/config
func (routes *Routes) updateNotificationConfig(w http.ResponseWriter, r *http.Request) {
	var cfg NotificationConfigResponse
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := cfg.Validate(); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := routes.deps.Notifications.Save(r.Context(), cfg); err != nil {
		writeServiceError(w, err)
		return
	}
	slog.Info("Notification configuration updated",
		"enabled", cfg.Enabled,
		"recipients", len(cfg.EmailRecipients),
		"failure_threshold", cfg.GetFailureThreshold())
	routes.getNotificationConfig(w, r)
}

// listKeys handles GET /api/v1/debug/keys
func (routes *Routes) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := routes.deps.Keys.Keys(r.Context(), routes.deps.KeyPattern)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	common.WriteJSONResponse(w, KeysResponse{Keys: keys, Count: len(keys)}, http.StatusOK)
}

// deleteKeys handles DELETE /api/v1/debug/keys
func (routes *Routes) deleteKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := routes.deps.Keys.Keys(r.Context(), routes.deps.KeyPattern)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(keys) > 0 {
		if err := routes.deps.Keys.Delete(r.Context(), keys...); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	slog.Warn("Deleted all reposync keys", "count", len(keys))
	common.WriteJSONResponse(w, DeleteKeysResponse{Deleted: len(keys)}, http.StatusOK)
}

// decodeBody decodes a JSON request body, writing a 400 response on failure
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		common.WriteErrorResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// intQuery parses an optional integer query parameter. A negative maxValue means unbounded.
func intQuery(r *http.Request, name string, def, minValue, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &queryError{name: name, value: raw}
	}
	if n < minValue || (maxValue >= 0 && n > maxValue) {
		return 0, &queryError{name: name, value: raw}
	}
	return n, nil
}
