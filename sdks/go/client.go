package tamshai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client is the Tamshai Gateway SDK client. It calls the gateway's tool API
// under one caller identity: reads route directly, writes come back as
// pending confirmations that a second party resolves.
type Client struct {
	serverAddr   string
	token        string
	timeout      time.Duration
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client

	logger *slog.Logger
}

// PendingItem is one entry of the caller's pending confirmation list.
type PendingItem struct {
	// ID is the single-use confirmation identifier.
	ID string `json:"id"`

	// Message describes the deferred action.
	Message string `json:"message"`

	// Preview carries display fields of the target record.
	Preview map[string]any `json:"preview,omitempty"`

	// ExpiresAt is when the confirmation lapses unresolved.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewClient creates a new gateway SDK client.
// It reads configuration from TAMSHAI_GATEWAY_* environment variables by
// default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr:   os.Getenv("TAMSHAI_GATEWAY_ADDR"),
		token:        os.Getenv("TAMSHAI_GATEWAY_TOKEN"),
		timeout:      parseDurationEnv("TAMSHAI_GATEWAY_TIMEOUT", 10*time.Second),
		pollInterval: 2 * time.Second,
		maxPolls:     150,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Invoke calls one tool. Reads return rows (possibly with truncation
// metadata); writes return a Result whose Pending field carries the
// confirmation the gateway created instead of executing.
func (c *Client) Invoke(ctx context.Context, domain, tool string, params map[string]any) (*Result, error) {
	path := fmt.Sprintf("/api/mcp/%s/%s", url.PathEscape(domain), url.PathEscape(tool))
	env, err := c.doRequest(ctx, http.MethodPost, path, params)
	if err != nil {
		return nil, err
	}
	return resultFromEnvelope(env), nil
}

// Execute resolves a pending confirmation: approved=true executes the
// deferred write, approved=false denies it. Either way the id is consumed.
func (c *Client) Execute(ctx context.Context, confirmationID string, approved bool, comments string) (*Result, error) {
	body := map[string]any{
		"confirmationId": confirmationID,
		"approved":       approved,
	}
	if comments != "" {
		body["comments"] = comments
	}
	env, err := c.doRequest(ctx, http.MethodPost, "/execute", body)
	if err != nil {
		return nil, err
	}
	return resultFromEnvelope(env), nil
}

// Approve is shorthand for Execute with approved=true.
func (c *Client) Approve(ctx context.Context, confirmationID string) (*Result, error) {
	return c.Execute(ctx, confirmationID, true, "")
}

// Deny is shorthand for Execute with approved=false.
func (c *Client) Deny(ctx context.Context, confirmationID, comments string) (*Result, error) {
	return c.Execute(ctx, confirmationID, false, comments)
}

// PendingConfirmations lists the caller's own unexpired pending confirmations.
func (c *Client) PendingConfirmations(ctx context.Context) ([]PendingItem, error) {
	env, err := c.doRequest(ctx, http.MethodGet, "/api/confirmations", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Confirmations []PendingItem `json:"confirmations"`
	}
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return nil, fmt.Errorf("re-encode confirmation list: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode confirmation list: %w", err)
	}
	return payload.Confirmations, nil
}

// WaitForResolution blocks until the given confirmation is no longer pending
// for the caller: approved, denied, or expired. Only the confirmation's owner
// can observe it; for other callers the confirmation is never visible and
// this returns on the first poll.
func (c *Client) WaitForResolution(ctx context.Context, confirmationID string) error {
	for i := 0; i < c.maxPolls; i++ {
		pending, err := c.PendingConfirmations(ctx)
		if err != nil {
			c.logger.Warn("confirmation poll failed",
				"confirmation_id", confirmationID,
				"error", err,
			)
		} else {
			found := false
			for _, item := range pending {
				if item.ID == confirmationID {
					found = true
					break
				}
			}
			if !found {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return &ResolutionTimeoutError{ConfirmationID: confirmationID}
}

// ReadAll pages through a read tool until the gateway reports no more rows,
// following the continuation cursor. maxPages bounds the walk; 0 means the
// SDK default of 100 pages.
func (c *Client) ReadAll(ctx context.Context, domain, tool string, params map[string]any, maxPages int) ([]map[string]any, error) {
	if maxPages <= 0 {
		maxPages = 100
	}

	merged := make(map[string]any, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}

	var rows []map[string]any
	for page := 0; page < maxPages; page++ {
		result, err := c.Invoke(ctx, domain, tool, merged)
		if err != nil {
			return rows, err
		}
		rows = append(rows, result.Rows()...)

		if result.Metadata == nil || !result.Metadata.HasMore || result.Metadata.NextCursor == "" {
			return rows, nil
		}
		merged["cursor"] = result.Metadata.NextCursor
	}
	return rows, fmt.Errorf("result not exhausted after %d pages", maxPages)
}

// doRequest performs an HTTP request against the gateway and decodes the
// envelope. Error envelopes become typed errors.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*envelope, error) {
	reqURL := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response (HTTP %d): %w", httpResp.StatusCode, err)
	}

	if env.Status == StatusError {
		return nil, gatewayError(&env, httpResp.StatusCode)
	}
	return &env, nil
}

// gatewayError turns an error envelope into the matching typed error.
func gatewayError(env *envelope, httpStatus int) error {
	ge := GatewayError{
		Code:            env.Code,
		Message:         env.Message,
		SuggestedAction: env.SuggestedAction,
		HTTPStatus:      httpStatus,
	}
	if env.Code == "INSUFFICIENT_PERMISSIONS" {
		return &PermissionDeniedError{GatewayError: ge}
	}
	return &ge
}

// resultFromEnvelope maps a non-error envelope onto the SDK result shape.
func resultFromEnvelope(env *envelope) *Result {
	if env.Status == StatusPendingConfirmation {
		return &Result{
			Pending: &PendingConfirmation{
				ID:      env.ConfirmationID,
				Message: env.Message,
				Preview: env.ConfirmationData,
			},
		}
	}
	return &Result{
		Data:     env.Data,
		Metadata: env.Metadata,
	}
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
