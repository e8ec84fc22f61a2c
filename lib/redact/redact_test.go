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

package redact_test

import (
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/redact"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

type ExampleType struct {
	SomeString string
	SomeNum    int
	Timeout    time.Duration
	Passwords  []string `redact:"true"`
	Secret     Secret   `redact:"true"`
	EmptyKey   string   `redact:"true"`
	Users      []User
	Limits     map[string]int
	Optional   *Secret
	hidden     string
}

type Secret struct {
	Things []string
	PIN    int
}

type User struct {
	Email    string
	Password string `redact:"true"`
}

func TestToBytes(t *testing.T) {
	t.Parallel()
	e := ExampleType{
		SomeString: "This is a string",
		SomeNum:    123456,
		Timeout:    90 * time.Second,
		Passwords:  []string{"password1", "password2"},
		Secret:     Secret{Things: []string{"abc"}, PIN: 123},
		Users:      []User{{Email: "a@example.com", Password: "pw"}},
		Limits:     map[string]int{"b": 2, "a": 1},
		hidden:     "not printed",
	}
	expected := `
SomeString = This is a string
SomeNum = 123456
Timeout = 1m30s
Passwords = ****
Secret = ****
EmptyKey = (unset)
Users[0]
    Email = a@example.com
    Password = ****
Limits[a] = 1
Limits[b] = 2
Optional = nil`
	b, err := redact.ToBytes(&e)
	require.NoError(t, err)
	require.Equal(t, strings.TrimSpace(expected), strings.TrimSpace(string(b)))
}

type ExampleType2 struct {
	MyFunc func()
}

func TestToBytes_unsupportedKind(t *testing.T) {
	t.Parallel()
	_, err := redact.ToBytes(&ExampleType2{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported field kind: func")

	_, err = redact.ToBytes(ExampleType2{})
	require.Error(t, err)
}
