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
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"strings"
	"time"
)

const TokenIssuer = "onus"

// JWTer signs and verifies the two token classes. Access and refresh tokens
// use separate secrets, so that either class can be rotated away on its own.
type JWTer struct {
	AccessSecret  string
	RefreshSecret string

	// Now defaults to time.Now.
	Now func() time.Time
}

var ErrMissingSecret = errors.New("signing secret is not configured")

func (j JWTer) now() time.Time {
	if j.Now == nil {
		return time.Now()
	}
	return j.Now()
}

func newTokenID() string {
	return uuid.NewString()
}

func (j JWTer) createJWT(claims jwt.Claims, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("[SignedString]: %w", err)
	}
	return token, nil
}

// authenticateJWT fills claims from tokenStr, or returns a *TokenError.
func (j JWTer) authenticateJWT(tokenStr, secret string, claims jwt.Claims) error {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return reject(RejectedMalformed, errors.New("no token provided"))
	}
	if secret == "" {
		return reject(RejectedSignatureInvalid, ErrMissingSecret)
	}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return rejectionFromJWT(fmt.Errorf("[jwt.ParseWithClaims]: %w", err))
	}
	if tok == nil || !tok.Valid {
		return reject(RejectedMalformed, errors.New("token is invalid"))
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return reject(RejectedMalformed, errors.New("token has no subject"))
	}
	return nil
}

// Verify checks a token against a secret without knowing which class it is.
// It is side-effect free; verifying the same token twice gives the same answer.
func Verify(token, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if err := (JWTer{}).authenticateJWT(token, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
