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

// Package session is the client's application root. It owns the one
// session store, refresh coordinator, activity monitor and access gate of a
// signed-in client, and keeps them consistent across login, refresh,
// expiry and logout.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/activity"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/gate"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/refresh"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/sessionstore"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	LoginPath         = "/api/auth/login"
	AdminLoginPath    = "/api/auth/admin/login"
	LogoutPath        = "/api/auth/logout"
	SessionStatusPath = "/api/auth/session-status"
	EventsPath        = "/api/events"
)

const logoutTimeout = 5 * time.Second

var ErrNoSession = errors.New("no stored session")

// LoginError is a rejected sign-in. Field, when set, names the form field
// Message belongs next to.
type LoginError struct {
	StatusCode int
	Field      string
	Message    string
}

func (e *LoginError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("login rejected (HTTP %v) on %v: %v", e.StatusCode, e.Field, e.Message)
	}
	return fmt.Sprintf("login rejected (HTTP %v): %v", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL  string
	Activity activity.Config
	Refresh  refresh.Config
}

type Client struct {
	baseURL    string
	store      sessionstore.Store
	httpClient *http.Client
	clk        clock.Clock
	logger     *slog.Logger

	holder  *gate.PrincipalHolder
	coord   *refresh.Coordinator
	monitor *activity.Monitor
	hub     *activity.Hub
	gate    *gate.Gate

	onExpired []func()
}

type Option func(*Client)

func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clk = clk
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the client used for every call to the server.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithHub feeds the activity monitor from an existing hub instead of a
// private one.
func WithHub(hub *activity.Hub) Option {
	return func(c *Client) {
		c.hub = hub
	}
}

// OnExpired is called after the session has been torn down for idleness,
// whether the local monitor or the server noticed first.
func OnExpired(f func()) Option {
	return func(c *Client) {
		c.onExpired = append(c.onExpired, f)
	}
}

func New(cfg Config, store sessionstore.Store, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		store:   store,
		clk:     clock.Real{},
		logger:  slog.Default(),
		holder:  &gate.PrincipalHolder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hub == nil {
		c.hub = activity.NewHub()
	}

	if c.httpClient == nil {
		c.httpClient = cfg.Refresh.NewHTTPClient()
	}
	c.coord = refresh.New(store,
		refresh.HTTPRefresher{BaseURL: c.baseURL, Client: c.httpClient},
		cfg.Refresh,
		refresh.WithHTTPClient(c.httpClient),
		refresh.WithLogger(c.logger),
		refresh.OnLogout(c.forcedLogout),
		refresh.OnSessionTimeout(c.serverTimedOut),
		refresh.OnRefresh(c.rotated),
	)

	monitor, err := activity.New(cfg.Activity,
		activity.WithClock(c.clk),
		activity.WithLogger(c.logger),
		activity.WithPinger(activity.PingerFunc(c.ping)),
	)
	if err != nil {
		return nil, fmt.Errorf("[activity.New]: %w", err)
	}
	monitor.OnExpired(c.expired)
	c.monitor = monitor

	c.gate = gate.New(c.holder, gate.Verifier{BaseURL: c.baseURL, Client: c.coord}, c.logger)
	return c, nil
}

// Principal is who is signed in, or nil.
func (c *Client) Principal() *authz.Principal {
	return c.holder.Get()
}

func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coord
}

func (c *Client) Monitor() *activity.Monitor {
	return c.monitor
}

func (c *Client) Hub() *activity.Hub {
	return c.hub
}

func (c *Client) Gate() *gate.Gate {
	return c.gate
}

// Login signs in a patient or provider.
func (c *Client) Login(ctx context.Context, email, password string) (authz.Principal, error) {
	return c.login(ctx, LoginPath, email, password)
}

// AdminLogin signs in an admin. Other roles are refused by the server.
func (c *Client) AdminLogin(ctx context.Context, email, password string) (authz.Principal, error) {
	return c.login(ctx, AdminLoginPath, email, password)
}

func (c *Client) login(ctx context.Context, path, email, password string) (authz.Principal, error) {
	var empty authz.Principal
	body, err := json.Marshal(onusjson.LoginRequest{Email: email, Password: password})
	if err != nil {
		return empty, fmt.Errorf("[Marshal]: %w", err)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return empty, fmt.Errorf("[NewRequestWithContext]: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, &refresh.ConnectivityError{Method: req.Method, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		p := refresh.ReadProblem(resp)
		return empty, &LoginError{StatusCode: resp.StatusCode, Field: p.Field, Message: p.Detail}
	}
	var lr onusjson.LoginResponse
	if err = json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return empty, fmt.Errorf("[Decode]: %w", err)
	}
	if err = lr.User.Validate(); err != nil {
		return empty, fmt.Errorf("[Validate]: %w", err)
	}

	// Whatever the previous session had in flight mustn't land in this one.
	c.coord.Invalidate()
	if err = sessionstore.SetPair(c.store, lr.Tokens); err != nil {
		return empty, fmt.Errorf("[SetPair]: %w", err)
	}
	if err = sessionstore.SetLastLoginAt(c.store, c.clk.Now()); err != nil {
		return empty, fmt.Errorf("[SetLastLoginAt]: %w", err)
	}
	c.holder.Set(lr.User)
	c.startMonitor()
	c.logger.Info("Signed in", "user", lr.User.ID, "role", lr.User.Role)
	return lr.User, nil
}

// Restore picks up a session left in the store by an earlier run. The
// claims are read without verification; the server still checks the token
// on every call.
func (c *Client) Restore() (authz.Principal, error) {
	access, ok := c.store.Get(sessionstore.KindAccess)
	if !ok {
		return authz.Principal{}, ErrNoSession
	}
	claims, err := authz.PeekAccessClaims(access)
	if err != nil {
		c.clear()
		return authz.Principal{}, fmt.Errorf("[PeekAccessClaims]: %w", err)
	}
	p := claims.Principal()
	c.holder.Set(p)
	c.startMonitor()
	return p, nil
}

// Logout revokes the refresh token on the server if it can, then forgets the
// session locally no matter what the server said.
func (c *Client) Logout(ctx context.Context) error {
	pair := sessionstore.Pair(c.store)
	c.coord.Invalidate()
	if pair.RefreshToken != "" || pair.AccessToken != "" {
		if err := c.revoke(ctx, pair); err != nil {
			c.logger.Warn("Server logout failed, logging out locally anyway", "err", err)
		}
	}
	c.monitor.Stop()
	err := c.store.Clear()
	c.holder.Clear()
	if err != nil {
		return fmt.Errorf("[Clear]: %w", err)
	}
	return nil
}

func (c *Client) revoke(ctx context.Context, pair authz.TokenPair) error {
	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	body, err := json.Marshal(onusjson.LogoutRequest{RefreshToken: pair.RefreshToken})
	if err != nil {
		return fmt.Errorf("[Marshal]: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LogoutPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("[NewRequestWithContext]: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if pair.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[Do]: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return &refresh.StatusError{StatusCode: resp.StatusCode, Problem: refresh.ReadProblem(resp)}
	}
	return nil
}

// Do sends an API request through the refresh coordinator.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.coord.Do(req)
}

func (c *Client) ping(ctx context.Context) error {
	var status onusjson.SessionStatus
	return c.coord.DoJSON(ctx, http.MethodGet, c.baseURL+SessionStatusPath, nil, &status)
}

func (c *Client) startMonitor() {
	c.monitor.Start()
	if err := c.monitor.Attach(c.hub); err != nil {
		c.logger.Warn("Another activity monitor owns the hub, this one stays idle", "err", err)
	}
}

// expired runs when the local idle monitor expires the session. There's no
// call to the server, which rejects the idle session on its own.
func (c *Client) expired() {
	c.coord.Invalidate()
	c.clear()
	c.logger.Info("Session expired from inactivity")
	for _, f := range c.onExpired {
		f()
	}
}

// serverTimedOut runs after the coordinator has already cleared the store.
func (c *Client) serverTimedOut() {
	c.monitor.Expire()
	if c.holder.Get() != nil {
		// The monitor wasn't running, so nothing has torn the session down yet.
		c.expired()
	}
}

// forcedLogout runs after a refresh failure has cleared the store.
func (c *Client) forcedLogout() {
	c.monitor.Stop()
	c.holder.Clear()
	c.logger.Info("Signed out after a failed token refresh")
}

func (c *Client) rotated(pair authz.TokenPair) {
	claims, err := authz.PeekAccessClaims(pair.AccessToken)
	if err != nil {
		c.logger.Error("Refreshed access token is unreadable", "err", err)
		return
	}
	c.holder.Set(claims.Principal())
}

func (c *Client) clear() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("Failed to clear session store", "err", err)
	}
	c.holder.Clear()
}
