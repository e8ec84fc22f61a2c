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
	"time"
)

// CreateRefreshToken makes the token a client trades for a new pair. It names
// only the account and session; everything else is re-read on refresh.
func (j JWTer) CreateRefreshToken(userID, sessionID string, accessExpiration, expiration time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("refresh token requires a user id")
	}
	return j.createJWT(
		RefreshClaims{}.
			WithIssuedAt(j.now()).
			WithExpiration(expiration).
			WithIssuer(TokenIssuer).
			WithSubject(userID).
			WithTokenID(newTokenID()).
			WithSessionID(sessionID).
			WithAccessExpiration(accessExpiration),
		j.RefreshSecret,
	)
}

func (j JWTer) AuthenticateRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.authenticateJWT(token, j.RefreshSecret, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, reject(RejectedMalformed, errors.New("refresh token has no jti"))
	}
	return claims, nil
}
