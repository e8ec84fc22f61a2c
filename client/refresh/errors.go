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

package refresh

import (
	"context"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"net"
)

var (
	// ErrSessionTimedOut means the server ended the session for inactivity.
	// Refreshing can't fix that.
	ErrSessionTimedOut = errors.New("session timed out")
	ErrNoRefreshToken  = errors.New("no refresh token stored")
	// ErrInvalidated means the session was ended locally while a refresh
	// was in flight, and the refresh's result was thrown away.
	ErrInvalidated = errors.New("session was invalidated during refresh")
)

// AuthError is an authorization failure that refreshing couldn't fix. It
// carries the original response's status and problem body.
type AuthError struct {
	StatusCode int
	Problem    herr.Problem
	// Err is why the refresh failed, when one was attempted.
	Err error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authorization failed: HTTP %v", e.StatusCode)
	if e.Problem.Detail != "" {
		msg += fmt.Sprintf(" (%v)", e.Problem.Detail)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConnectivityError is a request that never got an HTTP response, including
// one that hit the client timeout. It never triggers a refresh.
type ConnectivityError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%v %v: connectivity failure: %v", e.Method, e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func (e *ConnectivityError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusError is a non-2xx response that wasn't an authorization failure,
// from DoJSON or from a refresh the server failed to complete.
type StatusError struct {
	StatusCode int
	Problem    herr.Problem
}

func (e *StatusError) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("HTTP %v: %v", e.StatusCode, e.Problem.Detail)
	}
	return fmt.Sprintf("HTTP %v", e.StatusCode)
}
