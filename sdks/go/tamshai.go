// Package tamshai provides a Go SDK for the Tamshai Gateway tool API.
//
// The gateway mediates assistant tool calls against enterprise backends:
// it enforces role policy, intercepts writes into human confirmations, and
// annotates truncated reads. This SDK wraps that HTTP surface. It uses only
// the Go standard library (net/http) with zero external dependencies.
//
// Quick start:
//
//	// Set TAMSHAI_GATEWAY_ADDR and TAMSHAI_GATEWAY_TOKEN env vars, then:
//	client := tamshai.NewClient()
//
//	result, err := client.Invoke(ctx, "finance", "list_budgets", nil)
//	if err != nil {
//	    var denied *PermissionDeniedError
//	    if errors.As(err, &denied) {
//	        fmt.Printf("Denied: %s\n", denied.Message)
//	    }
//	}
//	if result.Pending != nil {
//	    fmt.Printf("Needs approval: %s\n", result.Pending.Message)
//	}
package tamshai

// Status is the outcome class of a gateway call.
type Status string

const (
	// StatusSuccess indicates the call completed and Rows/Data carry the result.
	StatusSuccess Status = "success"

	// StatusPendingConfirmation indicates a write was intercepted and awaits
	// human approval.
	StatusPendingConfirmation Status = "pending_confirmation"

	// StatusError indicates the call was rejected.
	StatusError Status = "error"
)

// TruncationMetadata annotates a read result that may have been capped by the
// gateway's page limit.
type TruncationMetadata struct {
	// ReturnedCount is the number of rows actually returned.
	ReturnedCount int `json:"returnedCount"`

	// HasMore is true when the result was truncated.
	HasMore bool `json:"hasMore"`

	// NextCursor is the opaque continuation cursor for the next page.
	NextCursor string `json:"nextCursor,omitempty"`

	// TotalEstimate describes the full result size, e.g. "more than 50".
	TotalEstimate string `json:"totalEstimate,omitempty"`

	// Warning is a human-readable truncation notice.
	Warning string `json:"warning,omitempty"`
}

// PendingConfirmation describes a write intercepted into the two-phase
// confirmation workflow.
type PendingConfirmation struct {
	// ID is the single-use confirmation identifier.
	ID string `json:"confirmationId"`

	// Message is the human-readable description of the deferred action.
	Message string `json:"message"`

	// Preview carries display fields of the target record.
	Preview map[string]any `json:"preview,omitempty"`
}

// Result is the successful outcome of a gateway call. Exactly one of the
// success and pending shapes is populated.
type Result struct {
	// Data is the raw result payload on success.
	Data any

	// Metadata annotates paginated read results.
	Metadata *TruncationMetadata

	// Pending is set when the call was a write intercepted into a
	// confirmation instead of executing.
	Pending *PendingConfirmation
}

// Rows returns the result payload as a row list, or nil when the payload has
// another shape.
func (r *Result) Rows() []map[string]any {
	list, ok := r.Data.([]any)
	if !ok {
		return nil
	}
	rows := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// envelope is the gateway's wire response.
type envelope struct {
	Status           Status              `json:"status"`
	Data             any                 `json:"data,omitempty"`
	Metadata         *TruncationMetadata `json:"metadata,omitempty"`
	Code             string              `json:"code,omitempty"`
	Message          string              `json:"message,omitempty"`
	SuggestedAction  string              `json:"suggestedAction,omitempty"`
	ConfirmationID   string              `json:"confirmationId,omitempty"`
	ConfirmationData map[string]any      `json:"confirmationData,omitempty"`
}
