// Package sidecar wraps the Dapr sidecar used as the fallback invocation path.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dapr "github.com/dapr/go-sdk/client"

	"github.com/angelmondragon/saga-coordinator/pkg/config"
)

const contentTypeJSON = "application/json"

type daprAPI interface {
	InvokeMethodWithContent(ctx context.Context, appID, methodName, verb string, content *dapr.DataContent) ([]byte, error)
	Wait(ctx context.Context, timeout time.Duration) error
	Close()
}

// Client invokes participant methods through the local sidecar.
type Client struct {
	api daprAPI
}

// New dials the sidecar gRPC endpoint.
func New(cfg config.SidecarConfig) (*Client, error) {
	addr := strings.TrimSpace(cfg.GRPCAddress)
	if addr == "" {
		return nil, errors.New("sidecar grpc address is required")
	}
	c, err := dapr.NewClientWithAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("dialing dapr sidecar %s: %w", addr, err)
	}
	return &Client{api: c}, nil
}

// Invoke POSTs body as JSON to method on appID and discards the response.
func (c *Client) Invoke(ctx context.Context, appID, method string, body []byte) error {
	if c == nil || c.api == nil {
		return errors.New("sidecar client not initialized")
	}
	content := &dapr.DataContent{ContentType: contentTypeJSON, Data: body}
	if _, err := c.api.InvokeMethodWithContent(ctx, appID, method, "post", content); err != nil {
		return fmt.Errorf("sidecar invoke %s/%s: %w", appID, method, err)
	}
	return nil
}

// Wait blocks until the sidecar reports ready or timeout elapses.
func (c *Client) Wait(ctx context.Context, timeout time.Duration) error {
	if c == nil || c.api == nil {
		return errors.New("sidecar client not initialized")
	}
	if timeout <= 0 {
		return nil
	}
	return c.api.Wait(ctx, timeout)
}

// Close releases the sidecar connection.
func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	c.api.Close()
	return nil
}
