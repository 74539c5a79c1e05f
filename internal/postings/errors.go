package postings

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies postings API failures.
type ErrorKind int

const (
	KindUnavailable ErrorKind = iota
	KindAuthFailed
	KindRateLimited
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthFailed:
		return "auth_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	default:
		return "unavailable"
	}
}

// APIError is returned by Search for every failure other than caller cancellation.
type APIError struct {
	Kind       ErrorKind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("postings api ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func apiError(kind ErrorKind, status int, err error) *APIError {
	return &APIError{Kind: kind, Status: status, Err: err}
}

// KindOf reports the kind of an API error found in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return 0, false
}

func statusError(resp *http.Response, body string) *APIError {
	err := fmt.Errorf("bad status: %s", resp.Status)
	if body = strings.TrimSpace(body); body != "" {
		err = fmt.Errorf("bad status: %s: %s", resp.Status, body)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apiError(KindAuthFailed, resp.StatusCode, err)
	case resp.StatusCode == http.StatusTooManyRequests:
		e := apiError(KindRateLimited, resp.StatusCode, err)
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return e
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return apiError(KindMalformed, resp.StatusCode, err)
	default:
		return apiError(KindUnavailable, resp.StatusCode, err)
	}
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
