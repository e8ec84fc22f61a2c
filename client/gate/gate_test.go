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

package gate_test

import (
	"context"
	"errors"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/gate"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/refresh"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/sessionstore"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeChecker struct {
	verified bool
	err      error
	calls    int
}

func (f *fakeChecker) ProviderVerified(context.Context) (bool, error) {
	f.calls++
	return f.verified, f.err
}

func holding(p *authz.Principal) *gate.PrincipalHolder {
	h := &gate.PrincipalHolder{}
	if p != nil {
		h.Set(*p)
	}
	return h
}

func TestGate_StaleUnverifiedClaimConverges(t *testing.T) {
	t.Parallel()
	holder := holding(principal(authz.RoleProvider, true, false))
	checker := &fakeChecker{verified: true}
	g := gate.New(holder, checker, nil)

	d, err := g.Check(t.Context(), "/provider/dashboard", providerOnly)
	require.NoError(t, err)
	assert.True(t, d.Allow)
	assert.True(t, holder.Get().IsProviderVerified())

	// The cached claim alone now allows.
	assert.True(t, gate.Decide(holder.Get(), providerOnly, "/provider/patients").Allow)
	d, err = g.Check(t.Context(), "/provider/patients", providerOnly)
	require.NoError(t, err)
	assert.True(t, d.Allow)
}

func TestGate_StaleVerifiedClaimIsOverruled(t *testing.T) {
	t.Parallel()
	holder := holding(principal(authz.RoleProvider, true, true))
	checker := &fakeChecker{verified: false}
	g := gate.New(holder, checker, nil)

	d, err := g.Check(t.Context(), "/provider/dashboard", providerOnly)
	require.NoError(t, err)
	assert.Equal(t, gate.Decision{RedirectTo: gate.VerificationPendingPath}, d)
	assert.False(t, holder.Get().IsProviderVerified())
}

func TestGate_PendingPage(t *testing.T) {
	t.Parallel()
	holder := holding(principal(authz.RoleProvider, true, false))
	checker := &fakeChecker{verified: false}
	g := gate.New(holder, checker, nil)
	pending := gate.Guard{AllowedRoles: []authz.Role{authz.RoleProvider}}

	d, err := g.Check(t.Context(), gate.VerificationPendingPath, pending)
	require.NoError(t, err)
	assert.True(t, d.Allow)

	checker.verified = true
	d, err = g.Check(t.Context(), gate.VerificationPendingPath, pending)
	require.NoError(t, err)
	assert.Equal(t, gate.Decision{RedirectTo: "/provider/dashboard"}, d)
	assert.Equal(t, 2, checker.calls)
}

func TestGate_NoLiveCheckOutsideProviderAreas(t *testing.T) {
	t.Parallel()
	checker := &fakeChecker{}

	g := gate.New(holding(principal(authz.RolePatient, true, false)), checker, nil)
	d, err := g.Check(t.Context(), "/patient/dashboard", patientOnly)
	require.NoError(t, err)
	assert.True(t, d.Allow)

	g = gate.New(holding(nil), checker, nil)
	d, err = g.Check(t.Context(), "/provider/dashboard", providerOnly)
	require.NoError(t, err)
	assert.Equal(t, gate.SignInPath, d.RedirectTo)

	g = gate.New(holding(principal(authz.RoleProvider, false, false)), checker, nil)
	d, err = g.Check(t.Context(), "/provider/dashboard", providerOnly)
	require.NoError(t, err)
	assert.Equal(t, "/provider/onboarding", d.RedirectTo)

	g = gate.New(holding(principal(authz.RoleProvider, true, true)), checker, nil)
	d, err = g.Check(t.Context(), "/admin/dashboard", adminOnly)
	require.NoError(t, err)
	assert.Equal(t, "/provider/dashboard", d.RedirectTo)

	assert.Zero(t, checker.calls)
}

func TestGate_LiveCheckFailure(t *testing.T) {
	t.Parallel()
	holder := holding(principal(authz.RoleProvider, true, true))
	checker := &fakeChecker{err: &refresh.ConnectivityError{Method: "GET", URL: "x", Err: errors.New("down")}}
	g := gate.New(holder, checker, nil)

	d, err := g.Check(t.Context(), "/provider/dashboard", providerOnly)
	require.Error(t, err)
	assert.True(t, d.Allow, "falls back to the cached claim")
	assert.True(t, holder.Get().IsProviderVerified())

	checker.err = refresh.ErrSessionTimedOut
	d, err = g.Check(t.Context(), "/provider/dashboard", providerOnly)
	require.ErrorIs(t, err, refresh.ErrSessionTimedOut)
	assert.Equal(t, gate.Decision{RedirectTo: gate.SignInPath, ReturnTo: "/provider/dashboard"}, d)
}

func TestGate_Reverify(t *testing.T) {
	t.Parallel()
	holder := holding(principal(authz.RoleProvider, true, false))
	checker := &fakeChecker{verified: true}
	g := gate.New(holder, checker, nil)

	verified, err := g.Reverify(t.Context())
	require.NoError(t, err)
	assert.True(t, verified)
	assert.True(t, gate.Decide(holder.Get(), providerOnly, "/provider/dashboard").Allow)

	holder.Set(*principal(authz.RolePatient, true, false))
	_, err = g.Reverify(t.Context())
	require.ErrorIs(t, err, gate.ErrNotProvider)
	assert.Equal(t, 1, checker.calls)
}

func TestPrincipalHolder(t *testing.T) {
	t.Parallel()
	h := &gate.PrincipalHolder{}
	assert.Nil(t, h.Get())

	p := principal(authz.RolePatient, true, false)
	h.Set(*p)
	got := h.Get()
	require.NotNil(t, got)
	got.Email = "changed@onus.test"
	assert.Equal(t, p.Email, h.Get().Email, "Get returns a copy")

	h.Clear()
	assert.Nil(t, h.Get())
}

type fakeDoer struct {
	err    error
	status onusjson.ProviderStatus
	url    string
}

func (f *fakeDoer) DoJSON(_ context.Context, _, url string, _, out any) error {
	f.url = url
	if f.err != nil {
		return f.err
	}
	*out.(*onusjson.ProviderStatus) = f.status
	return nil
}

func TestVerifier(t *testing.T) {
	t.Parallel()
	doer := &fakeDoer{status: onusjson.ProviderStatus{IsVerified: true}}
	v := gate.Verifier{BaseURL: "http://onus.test", Client: doer}
	verified, err := v.ProviderVerified(t.Context())
	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "http://onus.test"+gate.ProviderStatusPath, doer.url)

	doer.err = &refresh.StatusError{
		StatusCode: http.StatusForbidden,
		Problem:    herr.Problem{Code: herr.CodeProviderNotVerified},
	}
	verified, err = v.ProviderVerified(t.Context())
	require.NoError(t, err)
	assert.False(t, verified)

	doer.err = &refresh.StatusError{StatusCode: http.StatusForbidden}
	_, err = v.ProviderVerified(t.Context())
	var statusErr *refresh.StatusError
	require.ErrorAs(t, err, &statusErr)
}

func TestVerifier_ThroughCoordinator(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != gate.ProviderStatusPath || r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		herr.ProviderNotVerified(nil).WriteResponse(w)
	}))
	t.Cleanup(srv.Close)

	store := sessionstore.NewMemory()
	require.NoError(t, sessionstore.SetPair(store, authz.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}))
	coord := refresh.New(store, refresh.HTTPRefresher{BaseURL: srv.URL}, refresh.Config{Production: true})

	verified, err := gate.Verifier{BaseURL: srv.URL, Client: coord}.ProviderVerified(t.Context())
	require.NoError(t, err)
	assert.False(t, verified)
	assert.Zero(t, coord.Stats().RefreshCalls)
}
