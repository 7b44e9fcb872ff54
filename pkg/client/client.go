// Package client is a small Go client for the chronicle HTTP API.
//
// A Client keeps the bearer token from the last Login and sends it with
// every request. Non-2xx responses come back as *Error, which carries the
// HTTP status and the server's error envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sakif/chronicle/internal/model"
)

// The client decodes responses into the server's own types.
type (
	User      = model.User
	Entry     = model.Entry
	UserPatch = model.UserPatch
)

// Error is returned for any non-2xx response.
type Error struct {
	Status  int
	Message string
	Data    any
}

func (e *Error) Error() string {
	return fmt.Sprintf("chronicle: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks to one chronicle server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken starts the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the server at baseURL, e.g.
// "http://localhost:8080". Requests go to the /api prefix.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token, or "" when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token, e.g. one saved from an earlier run.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// LoginResult is the server's answer to Login.
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login signs in as email and keeps the returned token. name is only used
// when the account is created.
func (c *Client) Login(ctx context.Context, email, name string) (*LoginResult, error) {
	body := map[string]string{"email": email}
	if name != "" {
		body["name"] = name
	}

	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &res); err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// Logout revokes the current token on the server and forgets it. The
// token is forgotten even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetToken("")
	return err
}

// Me returns the logged-in user, including their entry statistics.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateMe changes the profile fields set in patch.
func (c *Client) UpdateMe(ctx context.Context, patch UserPatch) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPatch, "/auth/me", patch, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListEntries lists the user's entries. An empty sort means "-date" and a
// limit of zero means no limit.
func (c *Client) ListEntries(ctx context.Context, sort string, limit int) ([]Entry, error) {
	q := url.Values{}
	if sort != "" {
		q.Set("sort", sort)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/entries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var entries []Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateEntry creates an entry. Missing fields get the server defaults.
func (c *Client) CreateEntry(ctx context.Context, fields EntryFields) (*Entry, error) {
	var e Entry
	if err := c.do(ctx, http.MethodPost, "/entries", fields, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEntry changes only the fields set in fields.
func (c *Client) UpdateEntry(ctx context.Context, id string, fields EntryFields) (*Entry, error) {
	var e Entry
	if err := c.do(ctx, http.MethodPatch, "/entries/"+url.PathEscape(id), fields, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEntry removes an entry. An unknown id is a 404 *Error.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/entries/"+url.PathEscape(id), nil, nil)
}

// Chat sends prompt to the journaling companion and returns its reply.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	var res struct {
		Data string `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/ai/chat", map[string]string{"prompt": prompt}, &res); err != nil {
		return "", err
	}
	return res.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	return nil
}

// newError builds an *Error from an error response. The message falls back
// to the status text when the body is not the JSON error envelope.
func newError(status int, raw []byte) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}

	var env struct {
		Message string `json:"message"`
		Data    any    `json:"data"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Message != "" {
			e.Message = env.Message
		}
		e.Data = env.Data
	}
	return e
}
