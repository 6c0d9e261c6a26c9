package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a request the Bot API answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

var unreachableMarkers = []string{
	"bot was blocked",
	"user is deactivated",
	"chat not found",
	"bot can't initiate",
	"bot was kicked",
	"have no rights to send",
}

// IsUnreachable reports whether err means the recipient can no longer be
// messaged at all, as opposed to a transient failure.
func IsUnreachable(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.Code == 403 {
		return true
	}
	desc := strings.ToLower(ae.Description)
	for _, m := range unreachableMarkers {
		if strings.Contains(desc, m) {
			return true
		}
	}
	return false
}

// CompactError flattens an error message to one short line.
func CompactError(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "unknown error"
	}
	raw = strings.Join(strings.Fields(raw), " ")
	if len(raw) > 300 {
		return raw[:297] + "..."
	}
	return raw
}
