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
)

// RejectionKind says why a token was turned away.
type RejectionKind int

const (
	RejectedMalformed RejectionKind = iota + 1
	RejectedExpired
	RejectedSignatureInvalid
)

func (k RejectionKind) String() string {
	switch k {
	case RejectedMalformed:
		return "malformed"
	case RejectedExpired:
		return "expired"
	case RejectedSignatureInvalid:
		return "signature invalid"
	default:
		return fmt.Sprintf("RejectionKind(%d)", int(k))
	}
}

var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
)

func (k RejectionKind) sentinel() error {
	switch k {
	case RejectedExpired:
		return ErrTokenExpired
	case RejectedSignatureInvalid:
		return ErrTokenSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}

// TokenError is the only error returned by token verification.
type TokenError struct {
	Kind RejectionKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind.sentinel(), e.Err)
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func reject(kind RejectionKind, err error) *TokenError {
	return &TokenError{Kind: kind, Err: err}
}

// rejectionFromJWT maps a golang-jwt parse failure onto a RejectionKind.
func rejectionFromJWT(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return reject(RejectedExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return reject(RejectedSignatureInvalid, err)
	default:
		return reject(RejectedMalformed, err)
	}
}

// Rejection extracts the RejectionKind from an error chain.
func Rejection(err error) (RejectionKind, bool) {
	var tokErr *TokenError
	if errors.As(err, &tokErr) {
		return tokErr.Kind, true
	}
	return 0, false
}
