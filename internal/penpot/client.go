// Package penpot is a small client for the Penpot RPC API, used to set up
// state (log in, create teams, send invitations) without driving the UI.
package penpot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/gti/penpot-e2e/internal/logging"
)

// RPCError is the error body Penpot returns for a failed command.
type RPCError struct {
	Command    string `json:"-"`
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Hint       string `json:"hint"`
}

func (e *RPCError) Error() string {
	msg := fmt.Sprintf("penpot %s: %d %s/%s", e.Command, e.StatusCode, e.Type, e.Code)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// Client calls RPC commands at <baseURL>/api/rpc/command/<name>. The session
// cookie set by a login is kept for subsequent calls.
type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewClient creates a client for the Penpot instance at baseURL,
// e.g. "http://localhost:3449". Do not include a trailing slash.
func NewClient(baseURL string, log *zap.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar, Timeout: 30 * time.Second},
		log:     logging.OrNop(log),
	}, nil
}

// BaseURL returns the instance URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Cookies returns the session cookies held for the instance, so a browser
// can reuse a login made through the API.
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	return c.client.Jar.Cookies(u)
}

// Call runs command with params JSON-encoded and decodes the result into out (may be nil).
//
//	var team Team
//	err := c.Call(ctx, "create-team", map[string]any{"name": "QA"}, &team)
//
// A non-2xx answer is returned as *RPCError.
func (c *Client) Call(ctx context.Context, command string, params, out any) error {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/rpc/command/"+command, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s: %w", command, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", command, err)
	}

	c.log.Debug("rpc call",
		zap.String("command", command),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rpcErr := &RPCError{Command: command, StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, rpcErr); err != nil {
			rpcErr.Hint = strings.TrimSpace(string(respBody))
		}
		return rpcErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", command, err)
	}
	return nil
}
