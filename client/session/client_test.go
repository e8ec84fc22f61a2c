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

package session_test

import (
	"context"
	"github.com/rowan-franciscus/onus-health-application-sub001/api"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/activity"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/gate"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/refresh"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/session"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/sessionstore"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/directory"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const (
	patientEmail = "patient@onus.test"
	pendingEmail = "pending@onus.test"
	adminEmail   = "admin@onus.test"
	pendingID    = "2f1c6a9e-0004-4b7a-9a51-3c0d41a0b004"
)

type testEnv struct {
	t         *testing.T
	url       string
	clk       *clock.Manual
	userStore *directory.UserStore
}

// newTestEnv serves the real API. The server forgets idle sessions after
// serverIdle, which tests set apart from the client's own timeout.
func newTestEnv(t *testing.T, serverIdle time.Duration) *testEnv {
	t.Helper()
	cfg := conf.DefaultOnus()
	clk := clock.NewManual(time.Now().Truncate(time.Second))
	q, err := directory.NewTestUsersStore(cfg.Directory.TestUsers)
	require.NoError(t, err)
	userStore := directory.NewUserStore(q, time.Minute, clk)
	issuer, err := authz.NewIssuer(authz.IssuerConfig{
		AccessSecret:         "access-secret",
		RefreshSecret:        "refresh-secret",
		AccessTokenLifetime:  cfg.Core.AccessTokenLifetime,
		RefreshTokenLifetime: cfg.Core.RefreshTokenLifetime,
		Now:                  clk.Now,
	}, userStore, store.NewMemoryLedger(clk))
	require.NoError(t, err)
	idle := api.NewIdleTracker(serverIdle, 24*time.Hour, clk)
	es := api.NewEventSourcerer(userStore)
	srv := httptest.NewServer(api.AddToMux(nil, es, cfg, issuer, userStore, idle, nil))
	t.Cleanup(func() {
		es.Server.Close()
		srv.CloseClientConnections()
		srv.Close()
	})
	return &testEnv{t: t, url: srv.URL, clk: clk, userStore: userStore}
}

func (e *testEnv) client(st sessionstore.Store, opts ...session.Option) *session.Client {
	e.t.Helper()
	if st == nil {
		st = sessionstore.NewMemory()
	}
	c, err := session.New(session.Config{
		BaseURL: e.url,
		Activity: activity.Config{
			SessionTimeout: 180 * time.Second,
			WarningWindow:  60 * time.Second,
			CountdownTick:  time.Second,
		},
		Refresh: refresh.Config{Production: true, RequestTimeout: 10 * time.Second},
	}, st, append([]session.Option{session.WithClock(e.clk)}, opts...)...)
	require.NoError(e.t, err)
	return c
}

func TestLoginThenRestore(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	st := sessionstore.NewMemory()
	c := env.client(st)

	p, err := c.Login(t.Context(), patientEmail, "patient")
	require.NoError(t, err)
	assert.Equal(t, authz.RolePatient, p.Role)
	assert.Equal(t, &p, c.Principal())
	assert.NotEmpty(t, sessionstore.Pair(st).AccessToken)
	assert.NotEmpty(t, sessionstore.Pair(st).RefreshToken)
	at, ok := sessionstore.LastLoginAt(st)
	require.True(t, ok)
	assert.Equal(t, env.clk.Now().UnixMilli(), at.UnixMilli())
	assert.Equal(t, activity.Active, c.Monitor().State().Phase)
	assert.True(t, c.Hub().Claimed())

	// A fresh process picks up the stored session.
	restored := env.client(st)
	rp, err := restored.Restore()
	require.NoError(t, err)
	assert.Equal(t, p, rp)

	_, err = env.client(nil).Restore()
	require.ErrorIs(t, err, session.ErrNoSession)
}

func TestRestoreDropsAnUnreadableToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	st := sessionstore.NewMemory()
	require.NoError(t, st.Set(sessionstore.KindAccess, "garbage"))
	require.NoError(t, st.Set(sessionstore.KindRefresh, "garbage"))

	_, err := env.client(st).Restore()
	require.Error(t, err)
	assert.Equal(t, authz.TokenPair{}, sessionstore.Pair(st))
}

func TestLoginErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	c := env.client(nil)

	_, err := c.Login(t.Context(), patientEmail, "wrong")
	var loginErr *session.LoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, http.StatusUnauthorized, loginErr.StatusCode)
	assert.Equal(t, "password", loginErr.Field)
	assert.NotEmpty(t, loginErr.Message)
	assert.Nil(t, c.Principal())

	_, err = c.AdminLogin(t.Context(), patientEmail, "patient")
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, http.StatusForbidden, loginErr.StatusCode)
	assert.Nil(t, c.Principal())

	p, err := c.AdminLogin(t.Context(), adminEmail, "admin")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleAdmin, p.Role)
}

func TestLogoutRevokesTheRefreshToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	st := sessionstore.NewMemory()
	c := env.client(st)
	_, err := c.Login(t.Context(), patientEmail, "patient")
	require.NoError(t, err)
	pair := sessionstore.Pair(st)

	require.NoError(t, c.Logout(t.Context()))
	assert.Nil(t, c.Principal())
	assert.Equal(t, authz.TokenPair{}, sessionstore.Pair(st))
	assert.False(t, c.Hub().Claimed())

	_, err = refresh.HTTPRefresher{BaseURL: env.url}.Refresh(t.Context(), pair.RefreshToken)
	var authErr *refresh.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)

	// Logging out twice is harmless.
	require.NoError(t, c.Logout(t.Context()))
}

func TestIdleExpiryLogsOutLocally(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	st := sessionstore.NewMemory()
	expirations := 0
	c := env.client(st, session.OnExpired(func() { expirations++ }))
	_, err := c.Login(t.Context(), patientEmail, "patient")
	require.NoError(t, err)

	env.clk.Advance(120 * time.Second)
	assert.Equal(t, activity.Warning, c.Monitor().State().Phase)
	assert.NotNil(t, c.Principal())

	env.clk.Advance(60 * time.Second)
	assert.Equal(t, activity.Expired, c.Monitor().State().Phase)
	assert.Nil(t, c.Principal())
	assert.Equal(t, authz.TokenPair{}, sessionstore.Pair(st))
	assert.Equal(t, 1, expirations)
}

func TestContinuePingsTheServer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 150*time.Second)
	c := env.client(nil)
	_, err := c.Login(t.Context(), patientEmail, "patient")
	require.NoError(t, err)

	env.clk.Advance(130 * time.Second)
	require.Equal(t, activity.Warning, c.Monitor().State().Phase)
	require.NoError(t, c.Monitor().Continue(t.Context()))

	// Without the ping the server would have timed the session out by now.
	env.clk.Advance(100 * time.Second)
	require.Equal(t, activity.Active, c.Monitor().State().Phase)
	var status onusjson.SessionStatus
	require.NoError(t, c.Coordinator().DoJSON(t.Context(), http.MethodGet, env.url+session.SessionStatusPath, nil, &status))
	assert.True(t, status.Active)
}

func TestServerTimeoutExpiresTheSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 60*time.Second)
	st := sessionstore.NewMemory()
	expirations := 0
	c := env.client(st, session.OnExpired(func() { expirations++ }))
	_, err := c.Login(t.Context(), patientEmail, "patient")
	require.NoError(t, err)

	env.clk.Advance(61 * time.Second)
	require.Equal(t, activity.Active, c.Monitor().State().Phase)

	var status onusjson.SessionStatus
	err = c.Coordinator().DoJSON(t.Context(), http.MethodGet, env.url+session.SessionStatusPath, nil, &status)
	require.ErrorIs(t, err, refresh.ErrSessionTimedOut)
	assert.Equal(t, activity.Expired, c.Monitor().State().Phase)
	assert.Nil(t, c.Principal())
	assert.Equal(t, authz.TokenPair{}, sessionstore.Pair(st))
	assert.Equal(t, 1, expirations)
	assert.Zero(t, c.Coordinator().Stats().RefreshCalls)
}

func TestRefreshReplacesThePrincipal(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	st := sessionstore.NewMemory()
	c := env.client(st)
	p, err := c.Login(t.Context(), pendingEmail, "pending")
	require.NoError(t, err)
	require.False(t, p.IsProviderVerified())

	require.NoError(t, env.userStore.SetProviderVerified(t.Context(), pendingID, true))
	// Any rejected access token sends the next call through a refresh.
	require.NoError(t, st.Set(sessionstore.KindAccess, "stale"))

	var status onusjson.SessionStatus
	require.NoError(t, c.Coordinator().DoJSON(t.Context(), http.MethodGet, env.url+session.SessionStatusPath, nil, &status))
	assert.Equal(t, int64(1), c.Coordinator().Stats().RefreshCalls)
	assert.True(t, c.Principal().IsProviderVerified())
}

func TestGateFollowsTheServer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	c := env.client(nil)
	_, err := c.Login(t.Context(), pendingEmail, "pending")
	require.NoError(t, err)
	providerArea := gate.Guard{AllowedRoles: []authz.Role{authz.RoleProvider}, RequireOnboarding: true}

	d, err := c.Gate().Check(t.Context(), "/provider/dashboard", providerArea)
	require.NoError(t, err)
	assert.Equal(t, gate.VerificationPendingPath, d.RedirectTo)

	require.NoError(t, env.userStore.SetProviderVerified(t.Context(), pendingID, true))
	d, err = c.Gate().Check(t.Context(), "/provider/dashboard", providerArea)
	require.NoError(t, err)
	assert.True(t, d.Allow)
	// The cached Principal caught up, so later navigation needs no check.
	assert.True(t, gate.Decide(c.Principal(), providerArea, "/provider/patients").Allow)
}

func TestWatchVerification(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	provider := env.client(nil)
	_, err := provider.Login(t.Context(), pendingEmail, "pending")
	require.NoError(t, err)
	admin := env.client(nil)
	_, err = admin.AdminLogin(t.Context(), adminEmail, "admin")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	changes := make(chan bool, 4)
	done := make(chan error, 1)
	go func() {
		done <- provider.WatchVerification(ctx, func(verified bool) { changes <- verified })
	}()

	// The first event is the state at subscription time.
	select {
	case v := <-changes:
		assert.False(t, v)
	case <-time.After(10 * time.Second):
		t.Fatal("no initial verification state")
	}

	err = admin.Coordinator().DoJSON(t.Context(), http.MethodPost,
		env.url+"/api/admin/providers/"+pendingID+"/verification",
		onusjson.ProviderVerification{Verified: true}, nil)
	require.NoError(t, err)

	select {
	case v := <-changes:
		assert.True(t, v)
	case <-time.After(10 * time.Second):
		t.Fatal("no verification event")
	}
	assert.True(t, provider.Principal().IsProviderVerified())

	cancel()
	select {
	case err = <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("watch didn't stop")
	}
}

func TestWatchVerificationNeedsAProvider(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 30*time.Minute)
	c := env.client(nil)
	require.ErrorIs(t, c.WatchVerification(t.Context(), nil), gate.ErrNotProvider)
	_, err := c.Login(t.Context(), patientEmail, "patient")
	require.NoError(t, err)
	require.ErrorIs(t, c.WatchVerification(t.Context(), nil), gate.ErrNotProvider)
}
