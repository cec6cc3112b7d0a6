package tool

import "strings"

// writePatterns contains name fragments indicating a mutating operation.
// Registration uses this as a consistency check: a tool whose name matches a
// write pattern may not be registered as READ.
var writePatterns = []string{
	"create", "update", "delete", "remove", "approve", "reject", "deny",
	"submit", "request", "cancel", "assign", "transfer", "write", "set",
}

// LooksLikeWrite reports whether a tool name indicates a mutating operation.
// Matching is case-insensitive substring matching, so "undelete" also
// matches "delete"; the check only guards against registering obviously
// mutating tools as READ, it never substitutes for the registered class.
func LooksLikeWrite(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range writePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
