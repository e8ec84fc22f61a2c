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

type ProviderStatus struct {
	IsVerified bool `json:"isVerified"`
}

type ProviderVerification struct {
	Verified bool `json:"verified"`
}

// Names of the events on the provider verification stream.
const (
	EventProviderVerified = "ProviderVerified"
	EventInitialState     = "InitialState"
)

// ProviderVerifiedEvent is the payload of the SSE sent when an admin
// changes a provider's verification.
type ProviderVerifiedEvent struct {
	UserID   string `json:"userId"`
	Verified bool   `json:"verified"`
}
