package handler

import (
	"context"
	"net/http"
	"time"

	"chatty/internal/pkg/errs"
	"chatty/internal/pkg/resp"
)

// healthCheckTimeout bounds the identity backend probe.
const healthCheckTimeout = 2 * time.Second

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Online  int    `json:"online"`
}

// HandleHealth reports the identity backend state and the number of signed-in users.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if !deps.Server.BackendHealthy(ctx) {
			resp.RespondError(w, r, errs.NewError(errs.ErrBackendUnavailable))
			return
		}

		resp.RespondSuccess(w, r, HealthStatus{
			Status:  "ok",
			Backend: deps.BackendKind,
			Online:  deps.Server.Registry().Online(),
		})
	}
}
