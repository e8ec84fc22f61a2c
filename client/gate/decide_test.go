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
	"github.com/rowan-franciscus/onus-health-application-sub001/client/gate"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/stretchr/testify/assert"
	"testing"
)

func principal(role authz.Role, onboarded, verified bool) *authz.Principal {
	p := authz.NewPrincipal("u-1", "someone@onus.test", role, true, onboarded, verified)
	return &p
}

var (
	patientOnly  = gate.Guard{AllowedRoles: []authz.Role{authz.RolePatient}, RequireOnboarding: true}
	providerOnly = gate.Guard{AllowedRoles: []authz.Role{authz.RoleProvider}, RequireOnboarding: true}
	adminOnly    = gate.Guard{AllowedRoles: []authz.Role{authz.RoleAdmin}}
	anyRole      = gate.Guard{}
)

func TestDecide(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		p     *authz.Principal
		guard gate.Guard
		path  string
		want  gate.Decision
	}{
		{
			name:  "nobody signed in",
			p:     nil,
			guard: patientOnly,
			path:  "/patient/dashboard",
			want:  gate.Decision{RedirectTo: gate.SignInPath, ReturnTo: "/patient/dashboard"},
		},
		{
			name:  "nobody signed in on an open route",
			guard: anyRole,
			path:  "/settings",
			want:  gate.Decision{RedirectTo: gate.SignInPath, ReturnTo: "/settings"},
		},
		{
			name:  "patient on a provider route",
			p:     principal(authz.RolePatient, true, false),
			guard: providerOnly,
			path:  "/provider/patients",
			want:  gate.Decision{RedirectTo: "/patient/dashboard"},
		},
		{
			name:  "provider on an admin route",
			p:     principal(authz.RoleProvider, true, true),
			guard: adminOnly,
			path:  "/admin/dashboard",
			want:  gate.Decision{RedirectTo: "/provider/dashboard"},
		},
		{
			name:  "unrecognized role",
			p:     &authz.Principal{ID: "u-9", Role: "nurse"},
			guard: patientOnly,
			path:  "/patient/dashboard",
			want:  gate.Decision{RedirectTo: "/"},
		},
		{
			name:  "patient not onboarded",
			p:     principal(authz.RolePatient, false, false),
			guard: patientOnly,
			path:  "/patient/dashboard",
			want:  gate.Decision{RedirectTo: "/patient/onboarding"},
		},
		{
			name:  "patient not onboarded on a route that doesn't need it",
			p:     principal(authz.RolePatient, false, false),
			guard: gate.Guard{AllowedRoles: []authz.Role{authz.RolePatient}},
			path:  "/patient/onboarding",
			want:  gate.Decision{Allow: true},
		},
		{
			name:  "onboarded patient",
			p:     principal(authz.RolePatient, true, false),
			guard: patientOnly,
			path:  "/patient/dashboard",
			want:  gate.Decision{Allow: true},
		},
		{
			name:  "provider not onboarded",
			p:     principal(authz.RoleProvider, false, false),
			guard: providerOnly,
			path:  "/provider/dashboard",
			want:  gate.Decision{RedirectTo: "/provider/onboarding"},
		},
		{
			name:  "unverified provider",
			p:     principal(authz.RoleProvider, true, false),
			guard: providerOnly,
			path:  "/provider/dashboard",
			want:  gate.Decision{RedirectTo: gate.VerificationPendingPath},
		},
		{
			name:  "unverified provider already on the pending page",
			p:     principal(authz.RoleProvider, true, false),
			guard: gate.Guard{AllowedRoles: []authz.Role{authz.RoleProvider}},
			path:  gate.VerificationPendingPath,
			want:  gate.Decision{Allow: true},
		},
		{
			name:  "unverified provider on an open route",
			p:     principal(authz.RoleProvider, true, false),
			guard: anyRole,
			path:  "/settings",
			want:  gate.Decision{RedirectTo: gate.VerificationPendingPath},
		},
		{
			name:  "verified provider",
			p:     principal(authz.RoleProvider, true, true),
			guard: providerOnly,
			path:  "/provider/dashboard",
			want:  gate.Decision{Allow: true},
		},
		{
			name:  "admin",
			p:     principal(authz.RoleAdmin, false, false),
			guard: adminOnly,
			path:  "/admin/dashboard",
			want:  gate.Decision{Allow: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, gate.Decide(tc.p, tc.guard, tc.path))
		})
	}
}

func TestDecide_NobodyIsAlwaysSentToSignIn(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"/", "/patient/dashboard", "/patient/records/42", ""} {
		d := gate.Decide(nil, patientOnly, path)
		assert.False(t, d.Allow)
		assert.Equal(t, gate.SignInPath, d.RedirectTo)
		assert.Equal(t, path, d.ReturnTo)
	}
}
