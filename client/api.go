package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habedi/wanderlist/auth"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	defaultBackoff        = 1 * time.Second
)

// Config describes the backend a Client talks to.
type Config struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	// MaxRetries bounds attempts on server errors for idempotent requests.
	MaxRetries int
	Backoff    time.Duration
	// Base is the transport under the authenticated one. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// Client sends requests to the backend on behalf of the stored session.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	base      http.RoundTripper
	transport *Transport
	store     *auth.TokenStore
	oauth     *oauth2.Config
	cfg       Config
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is returned for a non-2xx response other than a recovered 401.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected HTTP status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// New builds a Client whose requests go through the authenticated transport.
// A nil refresher means the refresh_token grant against cfg.TokenURL.
func New(cfg Config, store *auth.TokenStore, refresher auth.Refresher) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = auth.DefaultRefreshTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	if refresher == nil {
		refresher = &auth.OAuth2Refresher{
			Config:     oauthConfig,
			HTTPClient: &http.Client{Transport: base, Timeout: cfg.RefreshTimeout},
		}
	}
	service := auth.NewService(store, refresher)
	service.Timeout = cfg.RefreshTimeout

	transport := NewTransport(base, store, service)
	return &Client{
		baseURL:   baseURL,
		http:      &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		base:      base,
		transport: transport,
		store:     store,
		oauth:     oauthConfig,
		cfg:       cfg,
	}, nil
}

// Transport returns the authenticated transport, for callers that need a
// RoundTripper of their own (a reverse proxy, for example).
func (c *Client) Transport() *Transport { return c.transport }

// Store returns the session store backing the client.
func (c *Client) Store() *auth.TokenStore { return c.store }

// AuthState reports the session state as the transport sees it.
func (c *Client) AuthState() auth.State { return c.transport.AuthState() }

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Head(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodHead, path, nil)
}

func (c *Client) Options(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodOptions, path, nil)
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Do sends method to path, resolved against the base URL. Idempotent
// requests are retried with exponential backoff on transport errors and
// server errors; session errors from the transport are never retried.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	attempts := 1
	if idempotent(method) {
		attempts = c.cfg.MaxRetries
	}
	backoff := c.cfg.Backoff

	var resp *http.Response
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		req, reqErr := newRequest(ctx, method, target, body)
		if reqErr != nil {
			return nil, reqErr
		}
		log.Debug().Str("method", method).Str("url", target).Msg("Sending HTTP request")
		resp, err = c.http.Do(req)
		if err != nil {
			if !retryable(ctx, err) {
				break
			}
			log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Request failed, retrying...")
			continue
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			log.Warn().Int("status", resp.StatusCode).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Server error, retrying...")
			closeResponseBody(resp)
			continue
		}
		break
	}
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", target).Msg("HTTP request failed")
		return nil, err
	}

	defer closeResponseBody(resp)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("url", target).Msg("HTTP request failed with non-successful status")
		return nil, &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: data}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return base.ResolveReference(ref).String(), nil
}

func newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", target).Msg("Failed to create request")
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, auth.ErrSessionExpired) && !errors.Is(err, auth.ErrDoubleFailure)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func closeResponseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 1024*1024)
	_ = resp.Body.Close()
}
