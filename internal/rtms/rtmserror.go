package rtms

import "fmt"

// Error is the {code, category, causes, fixes, docsUrl} envelope every
// RTMS-facing failure carries, satisfying the standard error interface so
// it composes with fmt.Errorf/%w and errors.As.
type Error struct {
	Code     int      `json:"code"`
	Category Category `json:"category"`
	Causes   []string `json:"causes,omitempty"`
	Fixes    []string `json:"fixes,omitempty"`
	DocsURL  string   `json:"docsUrl,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rtms error %d (%s): %s", e.Code, e.Category, firstOr(e.Causes, "unspecified"))
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

// NewHandshakeError builds an Error from a vendor handshake status_code,
// resolving its category via the fixed status-code table.
func NewHandshakeError(statusCode int) *Error {
	cat := CategoryForStatus(statusCode)
	return &Error{
		Code:     statusCode,
		Category: cat,
		Causes:   []string{handshakeCause(statusCode)},
		Fixes:    []string{handshakeFix(cat)},
		DocsURL:  "https://developers.example.com/rtms/errors",
	}
}

func handshakeCause(statusCode int) string {
	switch CategoryForStatus(statusCode) {
	case CategoryAuth:
		return "handshake credentials rejected by the media server"
	case CategoryMeeting:
		return "meeting is not in a state that accepts RTMS connections"
	case CategoryServer:
		return "media server reported an internal error"
	case CategoryNetwork:
		return "network error negotiating the handshake"
	case CategoryMedia:
		return "requested media type is unavailable for this stream"
	case CategorySecurity:
		return "signature verification failed"
	default:
		return "unrecognised handshake status code"
	}
}

func handshakeFix(cat Category) string {
	switch cat {
	case CategoryAuth, CategorySecurity:
		return "verify the client id, client secret, and secret token configured for this product"
	case CategoryMeeting:
		return "confirm the meeting is active and RTMS is enabled for the account"
	case CategoryServer, CategoryNetwork:
		return "retry; this is typically transient"
	case CategoryMedia:
		return "check the requested media subscription mask against what the account supports"
	default:
		return "consult the docs for this status code"
	}
}
