// Package preflight verifies that the worker's required data store is
// reachable and authenticated before the supervisor is allowed to start it.
//
// The check is deliberately minimal: one liveness command ("ping" or the
// closest equivalent the store's protocol offers) against the configured
// endpoint, bounded by a timeout. It runs exactly once per harness start
// and its failure aborts the harness before any worker is spawned.
package preflight

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Checker performs a single liveness check against a dependency endpoint
type Checker interface {
	// Name identifies the store kind ("mongodb", "redis", "postgres")
	Name() string
	// Check issues the liveness command. It blocks until the store
	// answers, the configured timeout expires, or ctx is cancelled.
	Check(ctx context.Context) error
}

// DefaultTimeout bounds the liveness command when no timeout is configured.
// Matches the server-selection timeout the bot deployment has always used.
const DefaultTimeout = 5 * time.Second

// New builds a Checker for the given connection URI. The store kind is
// derived from the URI scheme. An empty or unparseable URI is a
// configuration error: no network call is attempted.
func New(uri string, timeout time.Duration) (Checker, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, &DependencyError{
			Reason: ReasonConfiguration,
			Err:    fmt.Errorf("store URI is empty (set BOTKEEPER_STORE_URI or MONGO_URI)"),
		}
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, &DependencyError{
			Reason:   ReasonConfiguration,
			Endpoint: Redact(uri),
			Err:      fmt.Errorf("invalid store URI: %w", err),
		}
	}

	switch parsed.Scheme {
	case "mongodb", "mongodb+srv":
		return newMongoChecker(uri, timeout), nil
	case "redis", "rediss":
		return newRedisChecker(uri, timeout)
	case "postgres", "postgresql":
		return newPostgresChecker(uri, timeout), nil
	default:
		return nil, &DependencyError{
			Reason:   ReasonConfiguration,
			Endpoint: Redact(uri),
			Err:      fmt.Errorf("unsupported store scheme %q", parsed.Scheme),
		}
	}
}

// Redact strips credentials from a connection URI so it can be logged
func Redact(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "(unparseable)"
	}
	if parsed.User != nil {
		parsed.User = url.User(parsed.User.Username())
	}
	return parsed.Redacted()
}
