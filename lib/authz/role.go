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

package authz

import "fmt"

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// DashboardPath is where a role lands after sign-in. An unrecognized role goes to "/".
func DashboardPath(r Role) string {
	if !r.Valid() {
		return "/"
	}
	return "/" + string(r) + "/dashboard"
}

// OnboardingPath is the role's profile-completion flow. Admins don't onboard,
// so they get their dashboard.
func OnboardingPath(r Role) string {
	switch r {
	case RolePatient, RoleProvider:
		return "/" + string(r) + "/onboarding"
	default:
		return DashboardPath(r)
	}
}
