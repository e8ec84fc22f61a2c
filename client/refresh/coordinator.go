//
// See the file COPYRIGHT for copyright information.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package refresh wraps outbound API calls so that an expired access token
// is renewed once and the call replayed, and anything worse ends the session.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/sessionstore"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"golang.org/x/sync/singleflight"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	// RequestTimeout applies to every request, including refreshes.
	RequestTimeout time.Duration
	// Retries is how many times a request that failed on connectivity is
	// retried. Production never retries.
	Retries        int
	Production     bool
	InitialBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	return c
}

// NewHTTPClient makes the client New uses when none is given.
func (c Config) NewHTTPClient() *http.Client {
	return &http.Client{Timeout: c.withDefaults().RequestTimeout}
}

// Stats counts what the Coordinator has done.
type Stats struct {
	Requests     int64
	RefreshCalls int64
	Replays      int64
}

type Coordinator struct {
	cfg       Config
	client    *http.Client
	store     sessionstore.Store
	refresher Refresher
	logger    *slog.Logger

	onLogout         func()
	onSessionTimeout func()
	onRefresh        func(authz.TokenPair)

	group singleflight.Group
	// mu orders Invalidate against persisting a refreshed pair.
	mu         sync.Mutex
	generation uint64

	requests     atomic.Int64
	refreshCalls atomic.Int64
	replays      atomic.Int64
}

type Option func(*Coordinator)

// WithHTTPClient replaces the default client, whose only setting is the
// request timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Coordinator) {
		c.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// OnLogout is called after a failed refresh has cleared the store.
func OnLogout(f func()) Option {
	return func(c *Coordinator) {
		c.onLogout = f
	}
}

// OnSessionTimeout is called when the server says the session timed out.
func OnSessionTimeout(f func()) Option {
	return func(c *Coordinator) {
		c.onSessionTimeout = f
	}
}

// OnRefresh is called with every rotated pair, once it has been stored.
func OnRefresh(f func(authz.TokenPair)) Option {
	return func(c *Coordinator) {
		c.onRefresh = f
	}
}

func New(store sessionstore.Store, refresher Refresher, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg.withDefaults(),
		store:     store,
		refresher: refresher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = c.cfg.NewHTTPClient()
	}
	return c
}

func (c *Coordinator) HTTPClient() *http.Client {
	return c.client
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Requests:     c.requests.Load(),
		RefreshCalls: c.refreshCalls.Load(),
		Replays:      c.replays.Load(),
	}
}

// Invalidate throws away the result of any refresh that is still in
// flight. It's how idle expiry beats a refresh that finishes late.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
}

// Do sends req with the stored access token. A plain 401 leads to exactly one
// refresh and one replay. A 401 with SESSION_TIMEOUT ends the session with
// ErrSessionTimedOut, without refreshing. Failures to get any response come
// back as *ConnectivityError.
func (c *Coordinator) Do(req *http.Request) (*http.Response, error) {
	c.requests.Add(1)
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	sentWith, _ := c.store.Get(sessionstore.KindAccess)
	resp, err := c.send(req, body, sentWith)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	p := ReadProblem(resp)
	_ = resp.Body.Close()
	if p.Code == herr.CodeSessionTimeout {
		c.sessionTimedOut()
		return nil, ErrSessionTimedOut
	}
	original := &AuthError{StatusCode: resp.StatusCode, Problem: p}

	pair, err := c.refresh(req.Context(), sentWith)
	if err != nil {
		var connErr *ConnectivityError
		var statusErr *StatusError
		switch {
		case errors.Is(err, ErrSessionTimedOut):
			c.sessionTimedOut()
			return nil, ErrSessionTimedOut
		case errors.As(err, &connErr):
			// The refresh token may still be good, so don't log out.
			return nil, connErr
		case errors.As(err, &statusErr):
			// Likewise for a server that failed without judging the token.
			c.logger.Warn("Refresh failed on the server, keeping the session", "status", statusErr.StatusCode)
			return nil, statusErr
		case errors.Is(err, ErrInvalidated):
			original.Err = err
			return nil, original
		}
		c.logger.Info("Refresh failed, logging out", "url", req.URL.String(), "err", err)
		c.forceLogout()
		original.Err = err
		return nil, original
	}

	c.replays.Add(1)
	resp, err = c.send(req, body, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// No second refresh for the same request.
		p = ReadProblem(resp)
		_ = resp.Body.Close()
		if p.Code == herr.CodeSessionTimeout {
			c.sessionTimedOut()
			return nil, ErrSessionTimedOut
		}
		return nil, &AuthError{StatusCode: resp.StatusCode, Problem: p}
	}
	return resp, nil
}

// DoJSON sends in as a JSON body, when non-nil, and decodes a 2xx response
// into out, when non-nil. Other statuses come back as *StatusError.
func (c *Coordinator) DoJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[Marshal]: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("[NewRequestWithContext]: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Problem: ReadProblem(resp)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[Decode]: %w", err)
	}
	return nil
}

// refresh returns a usable pair for a request that was rejected with
// staleAccess. Concurrent callers share one call to the Refresher.
func (c *Coordinator) refresh(ctx context.Context, staleAccess string) (authz.TokenPair, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		// Someone else already rotated past the token this request used.
		stored := sessionstore.Pair(c.store)
		if stored.AccessToken != "" && stored.AccessToken != staleAccess {
			return stored, nil
		}
		if stored.RefreshToken == "" {
			return nil, ErrNoRefreshToken
		}
		c.mu.Lock()
		gen := c.generation
		c.mu.Unlock()

		// Shared by every waiter, so it mustn't die with the first caller's context.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout)
		defer cancel()
		c.refreshCalls.Add(1)
		pair, err := c.refresher.Refresh(ctx, stored.RefreshToken)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen {
			c.logger.Debug("Discarding refreshed tokens for an invalidated session")
			return nil, ErrInvalidated
		}
		if err = sessionstore.SetPair(c.store, pair); err != nil {
			return nil, fmt.Errorf("[SetPair]: %w", err)
		}
		if c.onRefresh != nil {
			c.onRefresh(pair)
		}
		return pair, nil
	})
	if err != nil {
		return authz.TokenPair{}, err
	}
	return v.(authz.TokenPair), nil
}

func (c *Coordinator) forceLogout() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("Failed to clear session store", "err", err)
	}
	if c.onLogout != nil {
		c.onLogout()
	}
}

func (c *Coordinator) sessionTimedOut() {
	c.Invalidate()
	if err := c.store.Clear(); err != nil {
		c.logger.Error("Failed to clear session store", "err", err)
	}
	if c.onSessionTimeout != nil {
		c.onSessionTimeout()
	}
}

// send makes one attempt at req, plus connectivity retries outside production.
func (c *Coordinator) send(req *http.Request, body []byte, accessToken string) (*http.Response, error) {
	attempt := func() (*http.Response, error) {
		r := req.Clone(req.Context())
		if body != nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
		}
		if accessToken != "" {
			r.Header.Set("Authorization", "Bearer "+accessToken)
		} else {
			r.Header.Del("Authorization")
		}
		resp, err := c.client.Do(r)
		if err != nil {
			connErr := &ConnectivityError{Method: r.Method, URL: r.URL.String(), Err: err}
			if req.Context().Err() != nil {
				return nil, backoff.Permanent(connErr)
			}
			return nil, connErr
		}
		return resp, nil
	}
	if c.cfg.Production || c.cfg.Retries <= 0 {
		resp, err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return resp, err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.InitialBackoff
	eb.MaxInterval = 16 * c.cfg.InitialBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.Retries)), req.Context())
	return backoff.RetryNotifyWithData(attempt, b, func(err error, wait time.Duration) {
		c.logger.Warn("Retrying request after connectivity failure", "wait", wait, "err", err)
	})
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("[ReadAll]: %w", err)
	}
	return b, nil
}
