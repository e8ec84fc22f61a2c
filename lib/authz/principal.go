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

import (
	"errors"
	"fmt"
	"time"
)

// Principal is the identity and authorization state carried by an access token.
// It is never mutated in place; the With* methods return copies.
type Principal struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Role                Role   `json:"role"`
	EmailVerified       bool   `json:"emailVerified"`
	OnboardingCompleted bool   `json:"onboardingCompleted"`

	// ProviderVerified is set iff Role is RoleProvider.
	ProviderVerified *bool `json:"providerVerified,omitempty"`
}

// NewPrincipal builds a Principal, dropping providerVerified for any role
// other than provider.
func NewPrincipal(
	id, email string,
	role Role,
	emailVerified, onboardingCompleted, providerVerified bool,
) Principal {
	p := Principal{
		ID:                  id,
		Email:               email,
		Role:                role,
		EmailVerified:       emailVerified,
		OnboardingCompleted: onboardingCompleted,
	}
	if role == RoleProvider {
		p.ProviderVerified = &providerVerified
	}
	return p
}

func (p Principal) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("principal has no id"))
	}
	if !p.Role.Valid() {
		errs = append(errs, fmt.Errorf("principal has invalid role %q", p.Role))
	}
	if p.Role == RoleProvider && p.ProviderVerified == nil {
		errs = append(errs, errors.New("provider principal is missing providerVerified"))
	}
	if p.Role != RoleProvider && p.ProviderVerified != nil {
		errs = append(errs, fmt.Errorf("%v principal must not carry providerVerified", p.Role))
	}
	return errors.Join(errs...)
}

// IsProviderVerified is false for anyone who isn't a verified provider.
func (p Principal) IsProviderVerified() bool {
	return p.Role == RoleProvider && p.ProviderVerified != nil && *p.ProviderVerified
}

// WithProviderVerified returns a copy of a provider Principal with the new
// verification state. Non-provider principals are returned unchanged.
func (p Principal) WithProviderVerified(verified bool) Principal {
	if p.Role != RoleProvider {
		return p
	}
	p.ProviderVerified = &verified
	return p
}

// TokenPair is what login, registration and refresh hand back to a client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// SessionID and AccessExpiresAt are only filled in by the server that
	// minted the pair. Clients read them from the claims.
	SessionID       string    `json:"-"`
	AccessExpiresAt time.Time `json:"-"`
}
