package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisChecker issues a PING against a Redis endpoint
type redisChecker struct {
	opts    *redis.Options
	uri     string
	timeout time.Duration
}

func newRedisChecker(uri string, timeout time.Duration) (*redisChecker, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, &DependencyError{
			Reason:   ReasonConfiguration,
			Endpoint: Redact(uri),
			Err:      fmt.Errorf("invalid redis URI: %w", err),
		}
	}

	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout

	return &redisChecker{opts: opts, uri: uri, timeout: timeout}, nil
}

func (c *redisChecker) Name() string {
	return "redis"
}

func (c *redisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client := redis.NewClient(c.opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return wrap(Redact(c.uri), err)
	}

	return nil
}
