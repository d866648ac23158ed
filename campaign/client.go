// Package campaign replicates campaigns created in a conversation to the
// external campaign service. Replication is best-effort: the conversation
// state is the source of truth and failures are only logged.
package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/log"
)

// DefaultTimeout bounds a single replication request.
const DefaultTimeout = 10 * time.Second

// StatusError is returned when the campaign service answers with anything
// other than 201 Created.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("campaign service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("campaign service returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the campaign service. A client without a base URL is
// disabled and every call is a no-op.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	wg sync.WaitGroup
}

// NewClient creates a client for the service at baseURL, for example
// http://localhost:5000. An empty baseURL disables replication.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Create posts c to /api/campaigns.
func (c *Client) Create(ctx context.Context, campaign canvas.Campaign) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/campaigns", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return nil
}

// Replicate sends campaign in the background. It returns immediately; the
// request is not tied to the caller's context and is never retried.
func (c *Client) Replicate(campaign canvas.Campaign) {
	if !c.Enabled() {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		logger := log.Named("campaign")
		if err := c.Create(ctx, campaign); err != nil {
			logger.Error("failed to replicate campaign %s (%q): %v", campaign.ID, campaign.Title, err)
			return
		}
		logger.Debug("%s replicated", campaign.ID)
	}()
}

// Wait blocks until every in-flight replication has finished.
func (c *Client) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}
