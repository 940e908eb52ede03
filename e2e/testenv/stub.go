package testenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gti/penpot-e2e/internal/mailstub"
)

// StubClient feeds the mailbox stub. Tests that run without a real Penpot
// deliver the expected mail themselves and then read it through the Poller.
type StubClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewStubClient creates a client for the stub at baseURL.
func NewStubClient(baseURL, token string) *StubClient {
	return &StubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Deliver puts a message in the stub mailbox and returns its id.
func (c *StubClient) Deliver(ctx context.Context, msg mailstub.DeliverRequest) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", stubError(resp)
	}

	var out mailstub.DeliverResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode deliver response: %w", err)
	}
	return out.ID, nil
}

// Reset empties the stub mailbox.
func (c *StubClient) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return stubError(resp)
	}
	return nil
}

func (c *StubClient) do(ctx context.Context, method string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/stub/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func stubError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var e mailstub.ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Errorf("mailstub: %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("mailstub: %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
