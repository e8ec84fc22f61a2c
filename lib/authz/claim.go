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
	"github.com/golang-jwt/jwt/v5"
	"time"
)

type AccessClaims struct {
	jwt.RegisteredClaims
	Email               string `json:"email"`
	Role                Role   `json:"role"`
	EmailVerified       bool   `json:"emv"`
	OnboardingCompleted bool   `json:"onb"`
	ProviderVerified    *bool  `json:"pvf,omitempty"`
	SessionID           string `json:"sid"`
}

func (c AccessClaims) WithExpiration(t time.Time) AccessClaims {
	c.ExpiresAt = jwt.NewNumericDate(t)
	return c
}

func (c AccessClaims) WithIssuedAt(t time.Time) AccessClaims {
	c.IssuedAt = jwt.NewNumericDate(t)
	return c
}

func (c AccessClaims) WithIssuer(s string) AccessClaims {
	c.Issuer = s
	return c
}

func (c AccessClaims) WithTokenID(s string) AccessClaims {
	c.ID = s
	return c
}

func (c AccessClaims) WithSessionID(s string) AccessClaims {
	c.SessionID = s
	return c
}

func (c AccessClaims) WithPrincipal(p Principal) AccessClaims {
	c.Subject = p.ID
	c.Email = p.Email
	c.Role = p.Role
	c.EmailVerified = p.EmailVerified
	c.OnboardingCompleted = p.OnboardingCompleted
	c.ProviderVerified = nil
	if p.ProviderVerified != nil {
		v := *p.ProviderVerified
		c.ProviderVerified = &v
	}
	return c
}

func (c AccessClaims) UserID() string {
	return c.Subject
}

// Principal reconstructs the identity the token was issued for.
func (c AccessClaims) Principal() Principal {
	p := Principal{
		ID:                  c.Subject,
		Email:               c.Email,
		Role:                c.Role,
		EmailVerified:       c.EmailVerified,
		OnboardingCompleted: c.OnboardingCompleted,
	}
	if c.ProviderVerified != nil {
		v := *c.ProviderVerified
		p.ProviderVerified = &v
	}
	return p
}

// Expiration returns the zero time if the token has no exp.
func (c AccessClaims) Expiration() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// RefreshClaims deliberately carry no authorization state, only who the
// token belongs to.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`

	// AccessExpiresAt is the exp of the access token minted alongside this
	// refresh token, in Unix seconds.
	AccessExpiresAt int64 `json:"aex,omitempty"`
}

func (c RefreshClaims) WithExpiration(t time.Time) RefreshClaims {
	c.ExpiresAt = jwt.NewNumericDate(t)
	return c
}

func (c RefreshClaims) WithIssuedAt(t time.Time) RefreshClaims {
	c.IssuedAt = jwt.NewNumericDate(t)
	return c
}

func (c RefreshClaims) WithIssuer(s string) RefreshClaims {
	c.Issuer = s
	return c
}

func (c RefreshClaims) WithSubject(s string) RefreshClaims {
	c.Subject = s
	return c
}

func (c RefreshClaims) WithTokenID(s string) RefreshClaims {
	c.ID = s
	return c
}

func (c RefreshClaims) WithSessionID(s string) RefreshClaims {
	c.SessionID = s
	return c
}

func (c RefreshClaims) WithAccessExpiration(t time.Time) RefreshClaims {
	c.AccessExpiresAt = t.Unix()
	return c
}

func (c RefreshClaims) UserID() string {
	return c.Subject
}

func (c RefreshClaims) Expiration() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
