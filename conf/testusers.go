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

package conf

import "github.com/rowan-franciscus/onus-health-application-sub001/lib/authn"

// DefaultTestUsers covers each role and each gate outcome. Every password is
// the part of the email before the "@".
func DefaultTestUsers() []TestUser {
	return []TestUser{
		{
			ID:                  "2f1c6a9e-0001-4b7a-9a51-3c0d41a0b001",
			Email:               "patient@onus.test",
			Role:                "patient",
			EmailVerified:       true,
			OnboardingCompleted: true,
			Password:            authn.NewSaltedDevOnly("patient"),
		},
		{
			ID:            "2f1c6a9e-0002-4b7a-9a51-3c0d41a0b002",
			Email:         "newpatient@onus.test",
			Role:          "patient",
			EmailVerified: true,
			Password:      authn.NewSaltedDevOnly("newpatient"),
		},
		{
			ID:                  "2f1c6a9e-0003-4b7a-9a51-3c0d41a0b003",
			Email:               "provider@onus.test",
			Role:                "provider",
			EmailVerified:       true,
			OnboardingCompleted: true,
			ProviderVerified:    true,
			Password:            authn.NewSaltedDevOnly("provider"),
		},
		{
			ID:                  "2f1c6a9e-0004-4b7a-9a51-3c0d41a0b004",
			Email:               "pending@onus.test",
			Role:                "provider",
			EmailVerified:       true,
			OnboardingCompleted: true,
			Password:            authn.NewSaltedDevOnly("pending"),
		},
		{
			ID:                  "2f1c6a9e-0005-4b7a-9a51-3c0d41a0b005",
			Email:               "admin@onus.test",
			Role:                "admin",
			EmailVerified:       true,
			OnboardingCompleted: true,
			Password:            authn.NewSaltedDevOnly("admin"),
		},
	}
}
