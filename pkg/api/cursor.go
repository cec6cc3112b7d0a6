package api

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// cursorPrefix versions the cursor format so a format change can be detected
// instead of silently misread.
const cursorPrefix = "v1:"

// EncodeCursor encodes the sort key of the last returned row as an opaque
// continuation cursor.
func EncodeCursor(sortKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + sortKey))
}

// DecodeCursor decodes a continuation cursor back into a sort key value.
// An empty cursor decodes to an empty sort key (first page).
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("malformed cursor: %w", err)
	}
	s := string(raw)
	if !strings.HasPrefix(s, cursorPrefix) {
		return "", fmt.Errorf("unsupported cursor version")
	}
	return strings.TrimPrefix(s, cursorPrefix), nil
}
