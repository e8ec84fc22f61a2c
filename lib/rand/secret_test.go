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

package rand_test

import (
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/rand"
	"github.com/stretchr/testify/assert"
	"strings"
	"testing"
)

func TestSecret(t *testing.T) {
	t.Parallel()
	a, b := rand.Secret(), rand.Secret()
	assert.Len(t, a, 52)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToUpper(a), a, "base32 only")
}
