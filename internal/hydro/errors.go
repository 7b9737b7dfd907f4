package hydro

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrNoSites is returned when neither explicit sites nor metadata sites were supplied.
var ErrNoSites = &ValidationError{
	Field: "sites",
	Msg:   "no sites provided; pass sites or request sites from metadata",
}

// ErrNoMetadata is returned when an operation needs metadata that was never loaded.
var ErrNoMetadata = &ValidationError{
	Field: "metadata",
	Msg:   "no metadata is available",
}

// ValidationError is a caller mistake. It is never retried.
type ValidationError struct {
	Field string
	Value string
	Valid []string
	Msg   string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		fmt.Fprintf(&b, "%s %q not recognised", e.Field, e.Value)
	}
	if len(e.Valid) > 0 {
		b.WriteString("; valid values: ")
		b.WriteString(strings.Join(e.Valid, ", "))
	}
	return b.String()
}

// TransportError is a failed HTTP exchange. It is transient when the
// underlying error is a network failure or the status is retriable.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("error %d on query: %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request may succeed.
func (e *TransportError) Temporary() bool {
	if e.StatusCode != 0 {
		return RetriableStatus(e.StatusCode)
	}
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// RetriableStatus reports whether an HTTP status is worth retrying.
func RetriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// UpstreamLimitError means the request matches more records than the
// source will ever return. The caller must narrow the request.
type UpstreamLimitError struct {
	URL   string
	Count int
	Limit int
}

func (e *UpstreamLimitError) Error() string {
	return fmt.Sprintf("request exceeds API limit of %d records (%d matched); use filters to reduce the number of records", e.Limit, e.Count)
}

// UpstreamDataError carries a malformed response or the server's own
// validation messages.
type UpstreamDataError struct {
	URL        string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *UpstreamDataError) Error() string {
	var b strings.Builder
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "error %d on query: %s", e.StatusCode, e.URL)
	} else {
		fmt.Fprintf(&b, "unexpected response from %s", e.URL)
	}
	if len(e.Messages) > 0 {
		b.WriteString("\nerror on parameters:\n")
		b.WriteString(strings.Join(e.Messages, "\n"))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamDataError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// IsValidation reports whether err is a caller mistake.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
