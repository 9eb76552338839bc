// pkg/authclient/client.go

// Package authclient is the Go client for the identity service. It attaches
// access tokens to outgoing requests and transparently rotates the refresh
// token when the server answers 401, collapsing concurrent refresh attempts
// into a single request.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrUnauthenticated is returned once the refresh token itself is rejected;
// the caller must run the login flow again.
var ErrUnauthenticated = errors.New("authclient: session expired, authentication required")

// Tokens is the pair the client holds on behalf of its user.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithOnUnauthenticated registers the terminal-failure hook, typically a
// redirect to the login screen. It fires at most once per Client lifetime no
// matter how many requests fail concurrently.
func WithOnUnauthenticated(fn func()) Option {
	return func(c *Client) { c.onUnauthenticated = fn }
}

// Client is safe for concurrent use. All token state is guarded by mu.
type Client struct {
	baseURL           string
	http              *http.Client
	onUnauthenticated func()

	mu         sync.Mutex
	tokens     Tokens
	refreshing bool
	waiters    []chan error
	signedOut  bool
}

func New(baseURL string, tokens Tokens, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns a snapshot of the current pair.
func (c *Client) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// SetTokens replaces the pair, e.g. after an out-of-band login.
func (c *Client) SetTokens(tokens Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
	c.signedOut = false
}

// Do sends an authenticated request and decodes the JSON body into out. A 401
// triggers one refresh-and-retry cycle; auth endpoints themselves are exempt
// so a failing login or refresh can never recurse.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	access := c.Tokens().AccessToken
	status, err := c.send(ctx, method, path, access, body, out)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized || refreshExempt(path) {
		return statusError(status)
	}

	if err := c.awaitRefresh(ctx, access); err != nil {
		return err
	}

	status, err = c.send(ctx, method, path, c.Tokens().AccessToken, body, out)
	if err != nil {
		return err
	}
	return statusError(status)
}

// refreshExempt reports whether the path must never trigger a refresh cycle.
func refreshExempt(path string) bool {
	for _, p := range []string{"/auth/login", "/auth/login/mfa", "/auth/refresh", "/auth/logout"} {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// awaitRefresh collapses concurrent refresh needs into one request. The first
// caller becomes the owner and performs the rotation; everyone else queues and
// is released in arrival order after the new tokens are committed. staleAccess
// is the token whose request failed: when it no longer matches the held pair,
// a refresh already happened and the caller only needs to retry.
func (c *Client) awaitRefresh(ctx context.Context, staleAccess string) error {
	c.mu.Lock()
	if c.signedOut {
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	if c.tokens.AccessToken != staleAccess {
		c.mu.Unlock()
		return nil
	}
	if c.refreshing {
		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.refreshing = true
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()

	refreshed, err := c.refresh(ctx, refreshToken)

	c.mu.Lock()
	// Commit before releasing anyone so the waiters' retries read the new pair.
	if err == nil {
		c.tokens = refreshed
	} else {
		c.tokens = Tokens{}
		err = ErrUnauthenticated
		if !c.signedOut {
			c.signedOut = true
			if c.onUnauthenticated != nil {
				defer c.onUnauthenticated()
			}
		}
	}
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	// Waiters are signalled in arrival order, but each retry runs in its own
	// goroutine, so the scheduler decides the order the retried requests
	// actually go out in. The guarantee is that no retry starts before the
	// rotated pair is committed, not a total order among the retries.
	for _, ch := range waiters {
		ch <- err
	}
	return err
}

// refresh performs the actual rotation call.
func (c *Client) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, ErrUnauthenticated
	}

	var envelope struct {
		Data struct {
			Tokens Tokens `json:"tokens"`
		} `json:"data"`
	}

	status, err := c.send(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	}, &envelope)
	if err != nil {
		return Tokens{}, err
	}
	if status != http.StatusOK {
		return Tokens{}, fmt.Errorf("refresh rejected with status %d", status)
	}
	if envelope.Data.Tokens.AccessToken == "" || envelope.Data.Tokens.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("refresh response missing tokens")
	}

	return envelope.Data.Tokens, nil
}

func (c *Client) send(ctx context.Context, method, path, access string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return resp.StatusCode, nil
}

func statusError(status int) error {
	if status >= http.StatusBadRequest {
		return fmt.Errorf("request failed with status %d", status)
	}
	return nil
}
