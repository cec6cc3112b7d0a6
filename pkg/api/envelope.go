// Package api defines the public HTTP contract of the gateway: the response
// envelope, the error code taxonomy, and the pagination metadata returned to
// dashboards and to the AI query layer.
package api

// Status is the top-level outcome of a gateway call.
type Status string

const (
	// StatusSuccess indicates the call completed and Data carries the result.
	StatusSuccess Status = "success"
	// StatusError indicates the call was rejected; Code and Message explain why.
	StatusError Status = "error"
	// StatusPendingConfirmation indicates a write was intercepted and is
	// awaiting a human decision via /execute or /api/confirm/{id}.
	StatusPendingConfirmation Status = "pending_confirmation"
)

// TruncationWarning is the fixed text attached to every truncated read result.
// It is part of the structured payload because the consuming AI agent has no
// other channel to learn that a result set is incomplete.
const TruncationWarning = "Results are truncated: more records match this query than were returned. " +
	"Fetch the next page with metadata.nextCursor before drawing conclusions from this data."

// TruncationMetadata annotates a read result that may have been capped by the
// backend. Warning must be surfaced verbatim to any AI consumer.
type TruncationMetadata struct {
	ReturnedCount int    `json:"returnedCount"`
	HasMore       bool   `json:"hasMore"`
	NextCursor    string `json:"nextCursor,omitempty"`
	TotalEstimate string `json:"totalEstimate,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// Response is the envelope returned by every gateway endpoint.
type Response struct {
	Status Status `json:"status"`

	// Data carries the backend result on success.
	Data any `json:"data,omitempty"`
	// Metadata annotates paginated read results.
	Metadata *TruncationMetadata `json:"metadata,omitempty"`

	// Code, Message and SuggestedAction are set when Status is "error".
	Code            Code   `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	SuggestedAction string `json:"suggestedAction,omitempty"`

	// ConfirmationID, ConfirmationData are set when Status is "pending_confirmation".
	ConfirmationID   string         `json:"confirmationId,omitempty"`
	ConfirmationData map[string]any `json:"confirmationData,omitempty"`
}

// Success builds a success envelope.
func Success(data any) *Response {
	return &Response{Status: StatusSuccess, Data: data}
}

// SuccessPage builds a success envelope for a paginated read result.
func SuccessPage(data any, meta *TruncationMetadata) *Response {
	return &Response{Status: StatusSuccess, Data: data, Metadata: meta}
}

// PendingConfirmation builds the first-phase envelope for an intercepted write.
func PendingConfirmation(id, message string, preview map[string]any) *Response {
	return &Response{
		Status:           StatusPendingConfirmation,
		ConfirmationID:   id,
		Message:          message,
		ConfirmationData: preview,
	}
}
