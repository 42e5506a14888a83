package apperr

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FromStatus classifies a non-2xx provider response. body is a short excerpt of the
// response used in the message; retryAfter is the raw Retry-After header.
func FromStatus(op string, status int, body, retryAfter string) *Error {
	msg := fmt.Errorf("provider returned %d %s: %s", status, http.StatusText(status), strings.TrimSpace(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(KindAuth, op, msg)
	case status == http.StatusTooManyRequests:
		e := New(KindRateLimited, op, msg)
		e.RetryAfter = parseRetryAfter(retryAfter)
		return e
	case status >= 500:
		return New(KindUnavailable, op, msg)
	default:
		return New(KindProvider, op, msg)
	}
}

// Unreachable wraps a transport failure (DNS, connection refused, timeout).
func Unreachable(op string, err error) *Error {
	return New(KindUnavailable, op, err)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindAuth:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindDimensionMismatch:
		return http.StatusInternalServerError
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
