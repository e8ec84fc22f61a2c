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

package authn

import (
	"errors"
	"fmt"
	"golang.org/x/crypto/bcrypt"
	"strings"
	"sync"
)

// bcryptLocker keeps logins from running bcrypt in parallel. A burst of
// sign-in attempts otherwise pins every core at once.
var bcryptLocker sync.Mutex

// Verify reports whether password matches a stored bcrypt hash. A wrong
// password is (false, nil); an unparseable stored value is an error.
func Verify(password, storedValue string) (isValid bool, err error) {
	if !strings.HasPrefix(storedValue, "$2") {
		return false, errors.New("unsupported non-bcrypt stored password")
	}
	bcryptLocker.Lock()
	defer bcryptLocker.Unlock()
	err = bcrypt.CompareHashAndPassword([]byte(storedValue), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("[CompareHashAndPassword]: %w", err)
	}
	return true, nil
}

// NewSalted hashes a password at bcrypt.DefaultCost.
func NewSalted(password string) (string, error) {
	return newSalted(password, bcrypt.DefaultCost)
}

// NewSaltedDevOnly hashes at the minimum cost, for test users and fixtures.
func NewSaltedDevOnly(password string) string {
	h, err := newSalted(password, bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}

func newSalted(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("[GenerateFromPassword]: %w", err)
	}
	return string(h), nil
}
