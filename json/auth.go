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

package json

import "github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User   authz.Principal `json:"user"`
	Tokens authz.TokenPair `json:"tokens"`
	// ExpiresUnixMs is when the client should refresh, a little before the
	// access token actually expires.
	ExpiresUnixMs int64 `json:"expires_unix_ms"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	Tokens        authz.TokenPair `json:"tokens"`
	ExpiresUnixMs int64           `json:"expires_unix_ms"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitzero"`
}

type SessionStatus struct {
	Active bool `json:"active"`
	// IdleTimeoutMs is the server's idle budget for the session.
	IdleTimeoutMs int64 `json:"idle_timeout_ms"`
}
