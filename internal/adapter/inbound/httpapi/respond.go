package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tamshai/gateway/pkg/api"
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondEnvelope writes a gateway envelope with the HTTP status derived from
// its outcome: 200 for success and pending confirmations, the mapped error
// status otherwise.
func respondEnvelope(w http.ResponseWriter, resp *api.Response) {
	status := http.StatusOK
	if resp.Status == api.StatusError {
		status = api.HTTPStatus(resp.Code)
	}
	respondJSON(w, status, resp)
}
