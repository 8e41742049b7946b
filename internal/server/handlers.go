package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"filecask/internal/api"
	"filecask/internal/store"
)

const defaultJSONMaxBody = 1 << 20 // 1 MiB

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case numericCode == ErrCodeInvariantViolation:
		s.log().Error("invariant violation", fields...)
		message = "internal error"
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

// writeServiceError maps a service/store error onto the API envelope.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequest(err error) error {
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func forbidden(err error) error {
	return makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, err)
}

func conflict(err error) error {
	return makeAPIError(http.StatusConflict, "conflict", ErrCodeConflict, err)
}

func quotaExceeded(err error) error {
	return makeAPIError(http.StatusInsufficientStorage, "quota_exceeded", ErrCodeQuotaExceeded, err)
}

func rateLimited(err error) error {
	return makeAPIError(http.StatusTooManyRequests, "rate_limited", ErrCodeRateLimited, err)
}

func ioFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "io_error", ErrCodeIOFailure, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func invariantViolation(err error) error {
	return makeAPIError(http.StatusInternalServerError, "invariant_violation", ErrCodeInvariantViolation, err)
}

// serviceError canonicalizes store sentinels into apiError values. Errors
// already carrying a status pass through untouched.
func serviceError(err error) error {
	if err == nil {
		return nil
	}
	var existing apiError
	if errors.As(err, &existing) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrQuotaExceeded):
		return quotaExceeded(err)
	case errors.Is(err, store.ErrUnknownUser):
		return notFoundCode(err, ErrCodeUserNotFound)
	case errors.Is(err, store.ErrUnknownBlob):
		return notFoundCode(err, ErrCodeBlobNotFound)
	case errors.Is(err, store.ErrNotFound):
		return notFoundCode(err, ErrCodeEntryNotFound)
	case errors.Is(err, store.ErrConflict):
		return conflict(err)
	case errors.Is(err, store.ErrRefUnderflow):
		return invariantViolation(err)
	default:
		return makeAPIError(http.StatusInternalServerError, "store_failure", ErrCodeStoreFailure, err)
	}
}

func httpStatusFromError(err error) int {
	var ae apiError
	if errors.As(err, &ae) && ae.status != 0 {
		return ae.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var ae apiError
	if errors.As(err, &ae) && ae.code != "" {
		return ae.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInsufficientStorage:
		return "quota_exceeded"
	default:
		return "internal"
	}
}

func errorNumericCode(status int, err error) int {
	var ae apiError
	if errors.As(err, &ae) && ae.errCode != 0 {
		return ae.errCode
	}
	return defaultErrorCodeByStatus(status)
}

// decodeJSON decodes a bounded JSON request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBody int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return makeAPIError(http.StatusRequestEntityTooLarge, "request_too_large", ErrCodeRequestTooLarge, fmt.Errorf("request body too large"))
		}
		return badRequestCode(fmt.Errorf("invalid json: %w", err), ErrCodeInvalidJSON)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return badRequestCode(fmt.Errorf("unexpected trailing data"), ErrCodeInvalidJSON)
	}
	return nil
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst, defaultJSONMaxBody); err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return false
	}
	return true
}

func requirePathValue(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		return "", badRequestCode(fmt.Errorf("%s is required", name), ErrCodeInvalidID)
	}
	return value, nil
}
