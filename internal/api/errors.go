package api

import "fmt"

// APIError carries the server's error envelope back to callers. ErrorCode
// is the numeric code from the envelope; zero means the server attached
// none.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("server returned status %d", e.Status)
	default:
		return "request failed"
	}
}

// IsNotFound reports whether err is an APIError with a 404 status.
func IsNotFound(err error) bool {
	return hasStatus(err, 404)
}

// IsQuotaExceeded reports whether err is the quota rejection (507).
func IsQuotaExceeded(err error) bool {
	return hasStatus(err, 507)
}

func hasStatus(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == status
}
