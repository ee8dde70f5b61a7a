package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Reason classifies why the dependency endpoint could not be verified
type Reason string

const (
	ReasonConfiguration     Reason = "configuration"
	ReasonConnectionRefused Reason = "connection_refused"
	ReasonAuthFailed        Reason = "authentication_failed"
	ReasonTimeout           Reason = "timeout"
	ReasonUnknown           Reason = "unknown"
)

// DependencyError reports a failed preflight check. Any DependencyError is
// fatal to the harness: the worker must not be started when its store is
// unreachable, otherwise the restart loop would spin forever without a
// chance of succeeding.
type DependencyError struct {
	Reason   Reason
	Endpoint string // redacted, safe to log
	Err      error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dependency check failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("dependency check failed (%s)", e.Reason)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is a DependencyError caused by
// missing or invalid configuration rather than a network-level failure.
func IsConfiguration(err error) bool {
	var depErr *DependencyError
	return errors.As(err, &depErr) && depErr.Reason == ReasonConfiguration
}

// authFailureMarkers are substrings emitted by the supported stores on
// failed authentication. Substring matching is crude but the drivers do
// not expose a common typed error for this.
var authFailureMarkers = []string{
	"authentication failed",
	"auth failed",
	"sasl",
	"noauth",
	"wrongpass",
	"invalid username-password",
	"invalid password",
	"password authentication failed",
	"permission denied",
}

// classify maps a transport-level error onto a Reason
func classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnectionRefused
	}

	errStr := strings.ToLower(err.Error())

	for _, marker := range authFailureMarkers {
		if strings.Contains(errStr, marker) {
			return ReasonAuthFailed
		}
	}

	switch {
	case strings.Contains(errStr, "connection refused"):
		return ReasonConnectionRefused
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"),
		strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "server selection error"):
		return ReasonTimeout
	}

	return ReasonUnknown
}

// wrap builds a DependencyError for a failed liveness command
func wrap(endpoint string, err error) *DependencyError {
	return &DependencyError{
		Reason:   classify(err),
		Endpoint: endpoint,
		Err:      err,
	}
}
