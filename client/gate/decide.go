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

// Package gate decides whether a route may be shown to the current
// principal, or where to send them instead.
package gate

import (
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"slices"
)

const (
	SignInPath              = "/sign-in"
	VerificationPendingPath = "/provider/verification-pending"
)

// Guard is the static access requirement of one route.
type Guard struct {
	// AllowedRoles is empty for routes open to every signed-in role.
	AllowedRoles      []authz.Role
	RequireOnboarding bool
}

func (g Guard) allows(r authz.Role) bool {
	return len(g.AllowedRoles) == 0 || slices.Contains(g.AllowedRoles, r)
}

// providerArea reports whether the route is one a provider can only use
// once verified.
func (g Guard) providerArea() bool {
	return slices.Contains(g.AllowedRoles, authz.RoleProvider)
}

// Decision is either Allow, or a redirect. ReturnTo is only set when
// redirecting to sign-in, so the user can be brought back afterward.
type Decision struct {
	Allow      bool
	RedirectTo string
	ReturnTo   string
}

func allow() Decision {
	return Decision{Allow: true}
}

func redirect(to string) Decision {
	return Decision{RedirectTo: to}
}

// Decide is the cached-claims half of the gate. It does no I/O.
func Decide(p *authz.Principal, g Guard, currentPath string) Decision {
	if p == nil {
		return Decision{RedirectTo: SignInPath, ReturnTo: currentPath}
	}
	if !g.allows(p.Role) {
		return redirect(authz.DashboardPath(p.Role))
	}
	if g.RequireOnboarding && !p.OnboardingCompleted {
		return redirect(authz.OnboardingPath(p.Role))
	}
	if p.Role == authz.RoleProvider && p.OnboardingCompleted && !p.IsProviderVerified() &&
		currentPath != VerificationPendingPath {
		return redirect(VerificationPendingPath)
	}
	return allow()
}
