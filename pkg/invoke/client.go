package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
	"github.com/angelmondragon/saga-coordinator/pkg/logger"
)

const (
	defaultMaxRetries     = 3
	defaultInitialDelay   = time.Second
	defaultAttemptTimeout = 10 * time.Second
)

// Policy bounds how hard the client tries before giving up.
type Policy struct {
	MaxRetries     int
	InitialDelay   time.Duration
	AttemptTimeout time.Duration
}

// PolicyFromConfig maps env configuration onto a Policy.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxRetries:     cfg.MaxRetries,
		InitialDelay:   cfg.InitialDelay(),
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = defaultAttemptTimeout
	}
	return p
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Client is the resilient entry point used by orchestrators.
type Client struct {
	transport Transport
	policy    Policy
	logg      *logger.Logger
	sleep     SleepFunc
}

// Option customizes a Client.
type Option func(*Client)

// WithSleep replaces the backoff wait.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func NewClient(transport Transport, policy Policy, logg *logger.Logger, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	c := &Client{
		transport: transport,
		policy:    policy.normalized(),
		logg:      logg,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke marshals payload once and delivers it with exponential backoff.
// It reports false when every attempt failed or ctx ended first.
func (c *Client) Invoke(ctx context.Context, participantID, method string, payload any) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"participant": participantID,
		"method":      method,
	})

	body, err := json.Marshal(payload)
	if err != nil {
		c.logg.Error(logCtx, "marshal invocation payload", err)
		return false
	}

	backoff := retry.WithMaxRetries(uint64(c.policy.MaxRetries-1), retry.NewExponential(c.policy.InitialDelay))
	for attempt := 1; ; attempt++ {
		err := c.attempt(ctx, participantID, method, body)
		if err == nil {
			if attempt > 1 {
				c.logg.Info(c.logg.WithField(logCtx, "attempt", attempt), "invocation succeeded after retry")
			}
			return true
		}

		delay, stop := backoff.Next()
		if stop {
			c.logg.Error(c.logg.WithField(logCtx, "attempts", attempt), "invocation failed", err)
			return false
		}
		c.logg.Warn(c.logg.WithFields(logCtx, map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		}), "invocation attempt failed; retrying")

		if err := c.sleep(ctx, delay); err != nil {
			c.logg.Warn(logCtx, fmt.Sprintf("invocation abandoned: %v", err))
			return false
		}
	}
}

func (c *Client) attempt(ctx context.Context, participantID, method string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()
	return c.transport.Send(attemptCtx, participantID, method, body)
}
