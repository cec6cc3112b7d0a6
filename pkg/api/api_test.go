package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "EMP-00042", "2026-01-15T09:00:00Z|b-17"} {
		cursor := EncodeCursor(key)
		got, err := DecodeCursor(cursor)
		if err != nil {
			t.Fatalf("DecodeCursor(%q) error: %v", cursor, err)
		}
		if got != key {
			t.Errorf("DecodeCursor(EncodeCursor(%q)) = %q", key, got)
		}
	}
}

func TestDecodeCursor_EmptyIsFirstPage(t *testing.T) {
	t.Parallel()

	got, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor(\"\") error: %v", err)
	}
	if got != "" {
		t.Errorf("DecodeCursor(\"\") = %q, want empty", got)
	}
}

func TestDecodeCursor_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := DecodeCursor("not-base64!!!"); err == nil {
		t.Error("DecodeCursor() accepted malformed input")
	}
	// Valid base64 but missing the version prefix.
	if _, err := DecodeCursor("Zm9v"); err == nil {
		t.Error("DecodeCursor() accepted unversioned cursor")
	}
}

func TestFromError_TypedCode(t *testing.T) {
	t.Parallel()

	err := NewError(CodeInsufficientPermissions, "role intern cannot call approve_budget", "Ask for the finance-write role.")
	resp := FromError(fmt.Errorf("routing: %w", err))

	if resp.Status != StatusError {
		t.Errorf("Status = %q, want error", resp.Status)
	}
	if resp.Code != CodeInsufficientPermissions {
		t.Errorf("Code = %q, want INSUFFICIENT_PERMISSIONS", resp.Code)
	}
	if resp.SuggestedAction == "" {
		t.Error("SuggestedAction is empty")
	}
}

func TestFromError_OpaqueErrorBecomesInternal(t *testing.T) {
	t.Parallel()

	resp := FromError(errors.New("pq: connection reset"))
	if resp.Code != CodeInternal {
		t.Errorf("Code = %q, want INTERNAL", resp.Code)
	}
	if resp.Message == "pq: connection reset" {
		t.Error("internal error detail leaked to the caller")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := map[Code]int{
		CodeUnauthenticated:         http.StatusUnauthorized,
		CodeInsufficientPermissions: http.StatusForbidden,
		CodeSeparationOfDuties:      http.StatusForbidden,
		CodeUnknownTool:             http.StatusNotFound,
		CodeConfirmationNotFound:    http.StatusNotFound,
		CodeConfirmationExpired:     http.StatusGone,
		CodeInvalidState:            http.StatusConflict,
		CodeBackendUnavailable:      http.StatusBadGateway,
		CodeInvalidRequest:          http.StatusBadRequest,
		CodeInternal:                http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
