package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/saga-coordinator/pkg/discovery"
)

type resolver interface {
	Resolve(ctx context.Context, service string) (discovery.Instance, error)
}

// StatusError reports a non-2xx answer from a participant.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("participant responded %d", e.StatusCode)
	}
	return fmt.Sprintf("participant responded %d: %s", e.StatusCode, e.Body)
}

// DiscoveryTransport resolves a healthy instance and POSTs to it directly.
type DiscoveryTransport struct {
	resolver resolver
	http     *http.Client
}

// NewDiscoveryTransport uses http.DefaultClient when hc is nil.
func NewDiscoveryTransport(r resolver, hc *http.Client) (*DiscoveryTransport, error) {
	if r == nil {
		return nil, errors.New("resolver is required")
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &DiscoveryTransport{resolver: r, http: hc}, nil
}

func (t *DiscoveryTransport) Name() string { return "discovery" }

func (t *DiscoveryTransport) Send(ctx context.Context, participantID, method string, payload []byte) error {
	inst, err := t.resolver.Resolve(ctx, participantID)
	if err != nil {
		return err
	}
	url := strings.TrimRight(inst.BaseURL(), "/") + "/" + strings.TrimLeft(method, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
