// Package httpapi is the inbound HTTP adapter: bearer authentication, the
// tool invocation endpoints, and the confirmation resolution endpoints.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tamshai/gateway/internal/domain/confirm"
	"github.com/tamshai/gateway/internal/domain/tool"
	"github.com/tamshai/gateway/internal/service"
	"github.com/tamshai/gateway/pkg/api"
)

// maxRequestBodySize bounds tool invocation bodies (1 MB).
const maxRequestBodySize = 1 << 20

// Handler wires the gateway services onto HTTP routes.
type Handler struct {
	identity      *service.IdentityService
	router        *service.RouterService
	confirmations *service.ConfirmationService
	metrics       *Metrics
	logger        *slog.Logger
}

// NewHandler builds the HTTP handler.
func NewHandler(
	identity *service.IdentityService,
	router *service.RouterService,
	confirmations *service.ConfirmationService,
	metrics *Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		identity:      identity,
		router:        router,
		confirmations: confirmations,
		metrics:       metrics,
		logger:        logger,
	}
}

// Routes returns the gateway's HTTP mux. Health and metrics are open; every
// API route sits behind the bearer check.
func (h *Handler) Routes() http.Handler {
	authed := http.NewServeMux()
	authed.HandleFunc("GET /api/mcp/{domain}/{toolname}", h.handleToolGet)
	authed.HandleFunc("POST /api/mcp/{domain}/{toolname}", h.handleToolPost)
	authed.HandleFunc("POST /execute", h.handleExecute)
	authed.HandleFunc("POST /api/confirm/{confirmationId}", h.handleConfirm)
	authed.HandleFunc("GET /api/confirmations", h.handleListConfirmations)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
	mux.Handle("/", h.requireBearer(authed))
	return mux
}

// handleToolGet routes a READ invocation with query-string parameters.
func (h *Handler) handleToolGet(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	h.route(w, r, params)
}

// handleToolPost routes an invocation with a JSON parameter object.
func (h *Handler) handleToolPost(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]any)
	if r.ContentLength != 0 {
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&params); err != nil {
			respondEnvelope(w, api.FromError(api.Errorf(api.CodeInvalidRequest,
				"Send the tool parameters as a single JSON object.",
				"malformed request body: %v", err)))
			return
		}
	}
	h.route(w, r, params)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request, params map[string]any) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.rejectUnauthenticated(w, "missing identity")
		return
	}

	inv := tool.Invocation{
		Domain: r.PathValue("domain"),
		Tool:   r.PathValue("toolname"),
		Params: params,
		Caller: caller,
	}

	start := time.Now()
	resp := h.router.Route(r.Context(), inv)
	h.observe("tool", resp, start)
	respondEnvelope(w, resp)
}

// executeRequest is the /execute body: the second phase of a write. Approved
// is a pointer so a missing field is distinguishable from an explicit denial.
type executeRequest struct {
	ConfirmationID string `json:"confirmationId"`
	Approved       *bool  `json:"approved"`
	Comments       string `json:"comments"`
}

// handleExecute resolves a confirmation identified in the request body.
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil || req.ConfirmationID == "" || req.Approved == nil {
		respondEnvelope(w, api.FromError(api.NewError(api.CodeInvalidRequest,
			"request body must carry confirmationId and approved",
			`Send {"confirmationId": "...", "approved": true|false}.`)))
		return
	}
	h.resolve(w, r, req.ConfirmationID, *req.Approved)
}

// confirmRequest is the /api/confirm/{id} body. Approved is a pointer so a
// missing field is distinguishable from an explicit denial.
type confirmRequest struct {
	Approved *bool  `json:"approved"`
	Comments string `json:"comments"`
}

// handleConfirm resolves a confirmation identified by path, for UIs that link
// directly to a pending confirmation.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil || req.Approved == nil {
		respondEnvelope(w, api.FromError(api.NewError(api.CodeInvalidRequest,
			"request body must carry approved",
			`Send {"approved": true|false}.`)))
		return
	}
	h.resolve(w, r, r.PathValue("confirmationId"), *req.Approved)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, id string, approved bool) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.rejectUnauthenticated(w, "missing identity")
		return
	}

	start := time.Now()
	resp := h.confirmations.Resolve(r.Context(), id, approved, caller)
	h.observe("confirm", resp, start)
	respondEnvelope(w, resp)
}

// handleListConfirmations returns the caller's unexpired pending confirmations.
func (h *Handler) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		h.rejectUnauthenticated(w, "missing identity")
		return
	}

	list, err := h.confirmations.ListForOwner(r.Context(), caller.Subject)
	if err != nil {
		h.logger.Error("list confirmations failed", "subject", caller.Subject, "error", err)
		respondEnvelope(w, api.FromError(err))
		return
	}
	if list == nil {
		list = []*confirm.PendingConfirmation{}
	}
	respondEnvelope(w, api.Success(map[string]any{"confirmations": list}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) observe(endpoint string, resp *api.Response, start time.Time) {
	if h.metrics == nil {
		return
	}
	code := "ok"
	if resp.Status == api.StatusError {
		code = string(resp.Code)
	}
	h.metrics.RequestsTotal.WithLabelValues(endpoint, code).Inc()
	h.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
