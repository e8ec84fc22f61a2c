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
	"fmt"
	"github.com/golang-jwt/jwt/v5"
	"time"
)

// SuggestedEarlyAccessTokenRefresh is how long before an access token actually expires that
// clients should consider refreshing it, to avoid racing the expiry on the way to the server.
const SuggestedEarlyAccessTokenRefresh time.Duration = -10 * time.Second

func (j JWTer) CreateAccessToken(p Principal, sessionID string, expiration time.Time) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("[Validate]: %w", err)
	}
	return j.createJWT(
		AccessClaims{}.
			WithIssuedAt(j.now()).
			WithExpiration(expiration).
			WithIssuer(TokenIssuer).
			WithTokenID(newTokenID()).
			WithSessionID(sessionID).
			WithPrincipal(p),
		j.AccessSecret,
	)
}

// AuthenticateAccessToken gives the claims of a valid access token. Every failure
// is a *TokenError; a token minted with the refresh secret fails as SignatureInvalid.
func (j JWTer) AuthenticateAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.authenticateJWT(token, j.AccessSecret, claims); err != nil {
		return nil, err
	}
	if err := claims.Principal().Validate(); err != nil {
		return nil, reject(RejectedMalformed, err)
	}
	return claims, nil
}

// PeekAccessClaims reads an access token's claims without checking its
// signature or expiry. It's for clients, which don't hold the secret and only
// need to know who they are signed in as.
func PeekAccessClaims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, reject(RejectedMalformed, err)
	}
	if err := claims.Principal().Validate(); err != nil {
		return nil, reject(RejectedMalformed, err)
	}
	return claims, nil
}
