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

package api_test

import (
	"bytes"
	"encoding/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/api"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/directory"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const (
	patientEmail  = "patient@onus.test"
	providerEmail = "provider@onus.test"
	pendingEmail  = "pending@onus.test"
	adminEmail    = "admin@onus.test"
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	clk    *clock.Manual
	idle   *api.IdleTracker
	issuer *authz.Issuer
}

func newTestServer(t *testing.T) *testServer {
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
	idle := api.NewIdleTracker(cfg.Session.Timeout, 24*time.Hour, clk)
	es := api.NewEventSourcerer(userStore)
	t.Cleanup(es.Server.Close)
	srv := httptest.NewServer(api.AddToMux(nil, es, cfg, issuer, userStore, idle, nil))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, clk: clk, idle: idle, issuer: issuer}
}

func (ts *testServer) do(method, path, bearer string, body any) (*http.Response, []byte) {
	ts.t.Helper()
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ts.t.Context(), method, ts.srv.URL+path, reqBody)
	require.NoError(ts.t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp, b
}

func (ts *testServer) login(email string) onusjson.LoginResponse {
	ts.t.Helper()
	local, _, _ := strings.Cut(email, "@")
	resp, body := ts.do(http.MethodPost, "/api/auth/login", "", onusjson.LoginRequest{
		Email:    email,
		Password: strings.ToLower(local),
	})
	require.Equal(ts.t, http.StatusOK, resp.StatusCode, string(body))
	var lr onusjson.LoginResponse
	require.NoError(ts.t, json.Unmarshal(body, &lr))
	return lr
}

func problem(t *testing.T, body []byte) herr.Problem {
	t.Helper()
	var p herr.Problem
	require.NoError(t, json.Unmarshal(body, &p), string(body))
	return p
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	lr := ts.login(providerEmail)
	assert.Equal(t, authz.RoleProvider, lr.User.Role)
	assert.True(t, lr.User.IsProviderVerified())
	assert.NotEmpty(t, lr.Tokens.AccessToken)
	assert.NotEmpty(t, lr.Tokens.RefreshToken)
	assert.Equal(t, ts.clk.Now().Add(time.Hour-10*time.Second).UnixMilli(), lr.ExpiresUnixMs)

	claims, err := ts.issuer.JWTer().AuthenticateAccessToken(lr.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, lr.User, claims.Principal())

	// email match is case-insensitive
	ts.login("PATIENT@onus.test")
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodPost, "/api/auth/login", "", onusjson.LoginRequest{
		Email:    patientEmail,
		Password: "not my password",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	p := problem(t, body)
	assert.Equal(t, "password", p.Field)
	assert.Equal(t, "Invalid email or password", p.Detail)
	assert.Empty(t, p.Code)

	// an unknown email looks the same
	resp, body = ts.do(http.MethodPost, "/api/auth/login", "", onusjson.LoginRequest{
		Email:    "nobody@onus.test",
		Password: "nobody",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "password", problem(t, body).Field)

	resp, body = ts.do(http.MethodPost, "/api/auth/login", "", onusjson.LoginRequest{Password: "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "email", problem(t, body).Field)
}

func TestAdminLogin(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, _ := ts.do(http.MethodPost, "/api/auth/admin/login", "", onusjson.LoginRequest{
		Email:    patientEmail,
		Password: "patient",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := ts.do(http.MethodPost, "/api/auth/admin/login", "", onusjson.LoginRequest{
		Email:    adminEmail,
		Password: "admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lr onusjson.LoginResponse
	require.NoError(t, json.Unmarshal(body, &lr))
	assert.Equal(t, authz.RoleAdmin, lr.User.Role)
}

func TestSessionStatusAndIdleTimeout(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	lr := ts.login(patientEmail)

	resp, body := ts.do(http.MethodGet, "/api/auth/session-status", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, problem(t, body).Code)

	resp, body = ts.do(http.MethodGet, "/api/auth/session-status", lr.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status onusjson.SessionStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Active)
	assert.Equal(t, (30 * time.Minute).Milliseconds(), status.IdleTimeoutMs)

	// activity keeps the session going
	ts.clk.Advance(20 * time.Minute)
	resp, _ = ts.do(http.MethodGet, "/api/auth/session-status", lr.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// then a long silence times it out, even though the token is still valid
	ts.clk.Advance(31 * time.Minute)
	resp, body = ts.do(http.MethodGet, "/api/auth/session-status", lr.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, herr.CodeSessionTimeout, problem(t, body).Code)

	// and refreshing doesn't bring it back
	resp, body = ts.do(http.MethodPost, "/api/auth/refresh-token", "", onusjson.RefreshRequest{
		RefreshToken: lr.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, herr.CodeSessionTimeout, problem(t, body).Code)

	// a new login is a new session
	lr = ts.login(patientEmail)
	resp, _ = ts.do(http.MethodGet, "/api/auth/session-status", lr.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBadTokensAreUnauthorized(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	lr := ts.login(patientEmail)

	for _, token := range []string{"garbage", "a.b.c", lr.Tokens.RefreshToken} {
		resp, body := ts.do(http.MethodGet, "/api/auth/session-status", token, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, token)
		assert.Empty(t, problem(t, body).Code)
	}

	// expired access token, with the idle tracker kept happy
	for range 7 {
		ts.clk.Advance(10 * time.Minute)
		ts.idle.Begin(lr.Tokens.SessionID)
	}
	resp, body := ts.do(http.MethodGet, "/api/auth/session-status", lr.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, problem(t, body).Code)
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	lr := ts.login(patientEmail)

	resp, body := ts.do(http.MethodPost, "/api/auth/refresh-token", "", onusjson.RefreshRequest{
		RefreshToken: lr.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rr onusjson.RefreshResponse
	require.NoError(t, json.Unmarshal(body, &rr))
	assert.NotEqual(t, lr.Tokens.RefreshToken, rr.Tokens.RefreshToken)
	assert.Greater(t, rr.ExpiresUnixMs, lr.ExpiresUnixMs)

	resp, _ = ts.do(http.MethodGet, "/api/auth/session-status", rr.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the old refresh token has been spent
	resp, body = ts.do(http.MethodPost, "/api/auth/refresh-token", "", onusjson.RefreshRequest{
		RefreshToken: lr.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, problem(t, body).Code)

	resp, _ = ts.do(http.MethodPost, "/api/auth/refresh-token", "", onusjson.RefreshRequest{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	lr := ts.login(patientEmail)

	resp, _ := ts.do(http.MethodPost, "/api/auth/logout", lr.Tokens.AccessToken, onusjson.LogoutRequest{
		RefreshToken: lr.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, ts.idle.Len())

	resp, _ = ts.do(http.MethodPost, "/api/auth/refresh-token", "", onusjson.RefreshRequest{
		RefreshToken: lr.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// logging out with nothing at all still works
	resp, _ = ts.do(http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestProviderStatus(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, body := ts.do(http.MethodGet, "/api/provider/status", ts.login(providerEmail).Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ps onusjson.ProviderStatus
	require.NoError(t, json.Unmarshal(body, &ps))
	assert.True(t, ps.IsVerified)

	resp, body = ts.do(http.MethodGet, "/api/provider/status", ts.login(pendingEmail).Tokens.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, herr.CodeProviderNotVerified, problem(t, body).Code)

	// patients aren't providers at all
	resp, body = ts.do(http.MethodGet, "/api/provider/status", ts.login(patientEmail).Tokens.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, problem(t, body).Code)
}

func TestAdminVerifiesProvider(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	pending := ts.login(pendingEmail)
	admin := ts.login(adminEmail)
	require.False(t, pending.User.IsProviderVerified())
	path := "/api/admin/providers/" + pending.User.ID + "/verification"

	// only admins may do this
	resp, _ := ts.do(http.MethodPost, path, pending.Tokens.AccessToken, onusjson.ProviderVerification{Verified: true})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := ts.do(http.MethodPost, path, admin.Tokens.AccessToken, onusjson.ProviderVerification{Verified: true})
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(body))

	// the pending provider's token still says unverified, but the live check knows better
	resp, _ = ts.do(http.MethodGet, "/api/provider/status", pending.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// and the next refresh bakes it into the claims
	resp, body = ts.do(http.MethodPost, "/api/auth/refresh-token", "", onusjson.RefreshRequest{
		RefreshToken: pending.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rr onusjson.RefreshResponse
	require.NoError(t, json.Unmarshal(body, &rr))
	claims, err := ts.issuer.JWTer().AuthenticateAccessToken(rr.Tokens.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.Principal().IsProviderVerified())

	resp, _ = ts.do(http.MethodPost, "/api/admin/providers/nobody/verification",
		admin.Tokens.AccessToken, onusjson.ProviderVerification{Verified: true})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(http.MethodPost, "/api/admin/providers/"+admin.User.ID+"/verification",
		admin.Tokens.AccessToken, onusjson.ProviderVerification{Verified: true})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	resp, body := ts.do(http.MethodGet, "/api/ping", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ack\n", string(body))
}

func TestBuildInfoIsForAdmins(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, _ := ts.do(http.MethodGet, "/api/debug/buildinfo", ts.login(patientEmail).Tokens.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := ts.do(http.MethodGet, "/api/debug/buildinfo", ts.login(adminEmail).Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.NotEmpty(t, body)
}
