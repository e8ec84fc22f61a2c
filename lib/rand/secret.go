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

// Package rand makes secrets.
package rand

import (
	cryptorand "crypto/rand"
)

// Secret makes a signing secret with 260 bits of entropy, for dev servers
// started without one configured.
func Secret() string {
	return cryptorand.Text() + cryptorand.Text()
}
