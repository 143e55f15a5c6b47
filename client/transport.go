package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"sync/atomic"

	"github.com/habedi/wanderlist/auth"
	"github.com/rs/zerolog/log"
)

// DefaultMaxBufferedBody caps how much of a request body without GetBody
// is held in memory for a replay.
const DefaultMaxBufferedBody = 8 << 20

// ErrBodyTooLarge is returned for a request whose body has no GetBody and is
// larger than the transport buffers.
var ErrBodyTooLarge = errors.New("request body too large to replay")

type phase int

const (
	phaseIdle phase = iota
	phaseRefreshInFlight
)

type action int

const (
	actionPass    action = iota // hand the response to the caller unchanged
	actionRetry                 // the token was replaced meanwhile; retry once with the current one
	actionRefresh               // start the one refresh
	actionEnqueue               // wait for the refresh already in flight
)

// decide is the response-phase state machine for a first attempt. stale
// reports that the token the request carried is no longer the current one.
func decide(status int, p phase, stale bool) action {
	switch {
	case status != http.StatusUnauthorized:
		return actionPass
	case p == phaseRefreshInFlight:
		return actionEnqueue
	case stale:
		return actionRetry
	default:
		return actionRefresh
	}
}

// Transport is an http.RoundTripper that attaches the stored access token as
// a bearer credential and recovers from an expired token with a single-flight
// refresh.
//
// Requests rejected with 401 while a refresh is in flight are queued and
// reissued in arrival order once it settles. Every request is retried at most
// once; a second 401 surfaces as auth.ErrDoubleFailure. A failed refresh
// clears the store and fails the trigger and every queued request with
// auth.ErrSessionExpired.
type Transport struct {
	Base    http.RoundTripper
	Store   *auth.TokenStore
	Session *auth.Service
	// MaxBufferedBody defaults to DefaultMaxBufferedBody.
	MaxBufferedBody int64

	mu      sync.Mutex
	phase   phase
	pending []*waiter
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, store *auth.TokenStore, session *auth.Service) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Store: store, Session: session}
}

// AuthState reports StateUnknown while a refresh is in flight and the
// store's state otherwise.
func (t *Transport) AuthState() auth.State {
	t.mu.Lock()
	refreshing := t.phase == phaseRefreshInFlight
	t.mu.Unlock()
	if refreshing {
		return auth.StateUnknown
	}
	return t.Store.AuthState()
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := t.replayableBody(req)
	if err != nil {
		return nil, err
	}

	sent := t.Store.Get()
	resp, err := t.send(req, body, sent)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	current := t.Store.Get()
	stale := current != nil && (sent == nil || current.AccessToken != sent.AccessToken)
	next := decide(resp.StatusCode, t.phase, stale)
	var w *waiter
	switch next {
	case actionPass:
		t.mu.Unlock()
		return resp, nil
	case actionEnqueue:
		w = &waiter{req: req, body: body, done: make(chan result, 1)}
		t.pending = append(t.pending, w)
	case actionRefresh:
		t.phase = phaseRefreshInFlight
	}
	queued := len(t.pending)
	t.mu.Unlock()

	closeResponseBody(resp)
	log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("Request rejected with 401")
	switch next {
	case actionEnqueue:
		log.Debug().Int("queued", queued).Msg("Refresh in flight, queueing request")
		return w.wait(req.Context())
	case actionRetry:
		return t.retry(req, body, current)
	}

	// Others may be queued behind this refresh, so the caller's cancellation must not abort it.
	token, refreshErr := t.Session.RefreshSession(context.WithoutCancel(req.Context()))

	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.phase = phaseIdle
	t.mu.Unlock()

	if refreshErr != nil {
		for _, w := range pending {
			w.deliver(nil, refreshErr)
		}
		return nil, refreshErr
	}
	t.replay(pending, token)
	return t.retry(req, body, token)
}

// replay reissues queued requests in arrival order. Each one is sent as soon
// as the one before it has been written, without waiting for its response.
func (t *Transport) replay(pending []*waiter, token *auth.Token) {
	prev := make(chan struct{})
	close(prev)
	for _, w := range pending {
		issued := make(chan struct{})
		go t.reissue(w, token, prev, issued)
		prev = issued
	}
}

// reissue waits for prev, retries w and closes issued once w's request is
// written or has failed.
func (t *Transport) reissue(w *waiter, token *auth.Token, prev <-chan struct{}, issued chan struct{}) {
	var once sync.Once
	markIssued := func() { once.Do(func() { close(issued) }) }
	defer markIssued()

	<-prev
	if w.abandoned.Load() {
		return
	}
	ctx := httptrace.WithClientTrace(w.req.Context(), &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { markIssued() },
	})
	w.deliver(t.retry(w.req.WithContext(ctx), w.body, token))
}

// retry sends req once more with token; a 401 now is final.
func (t *Transport) retry(req *http.Request, body *replayBody, token *auth.Token) (*http.Response, error) {
	resp, err := t.send(req, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		closeResponseBody(resp)
		log.Warn().Str("method", req.Method).Str("url", req.URL.String()).Msg("Request rejected again after token refresh")
		return nil, auth.ErrDoubleFailure
	}
	return resp, nil
}

// send clones req, so the caller's request is never modified, and attaches token if any.
func (t *Transport) send(req *http.Request, body *replayBody, token *auth.Token) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		rc, err := body.get()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain request body: %w", err)
		}
		out.Body = rc
		out.ContentLength = body.length
		out.GetBody = body.get
	}
	if token != nil && token.AccessToken != "" {
		out.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}
	return t.Base.RoundTrip(out)
}

type result struct {
	resp *http.Response
	err  error
}

// waiter is a request parked until the in-flight refresh settles.
type waiter struct {
	req       *http.Request
	body      *replayBody
	done      chan result
	abandoned atomic.Bool
}

func (w *waiter) wait(ctx context.Context) (*http.Response, error) {
	select {
	case r := <-w.done:
		return r.resp, r.err
	case <-ctx.Done():
		w.abandoned.Store(true)
		w.reclaim()
		return nil, ctx.Err()
	}
}

func (w *waiter) deliver(resp *http.Response, err error) {
	w.done <- result{resp: resp, err: err}
	if w.abandoned.Load() {
		w.reclaim()
	}
}

// reclaim closes a response nobody is going to read.
func (w *waiter) reclaim() {
	select {
	case r := <-w.done:
		if r.resp != nil {
			r.resp.Body.Close()
		}
	default:
	}
}

// replayBody hands out fresh copies of a request body.
type replayBody struct {
	get    func() (io.ReadCloser, error)
	length int64
}

// replayableBody makes req's body sendable more than once. A body with
// GetBody is reused as is; any other body is buffered up to MaxBufferedBody.
func (t *Transport) replayableBody(req *http.Request) (*replayBody, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	if req.GetBody != nil {
		return &replayBody{get: req.GetBody, length: req.ContentLength}, nil
	}

	limit := t.MaxBufferedBody
	if limit <= 0 {
		limit = DefaultMaxBufferedBody
	}
	if req.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrBodyTooLarge, req.ContentLength, limit)
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
	if err != nil {
		log.Error().Err(err).Str("url", req.URL.String()).Msg("Failed to buffer request body")
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return &replayBody{
		get:    func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil },
		length: int64(len(body)),
	}, nil
}
