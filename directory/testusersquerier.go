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

package directory

import (
	"context"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"sync"
)

// TestUsersStore serves the accounts from configuration. Verification
// changes live only as long as the process.
type TestUsersStore struct {
	mu    sync.Mutex
	users []User
}

var _ Querier = (*TestUsersStore)(nil)

func NewTestUsersStore(testUsers []conf.TestUser) (*TestUsersStore, error) {
	s := &TestUsersStore{}
	for _, tu := range testUsers {
		u, err := userFromTestUser(tu)
		if err != nil {
			return nil, err
		}
		s.users = append(s.users, u)
	}
	return s, nil
}

func userFromTestUser(tu conf.TestUser) (User, error) {
	role, err := authz.ParseRole(tu.Role)
	if err != nil {
		return User{}, fmt.Errorf("test user %v: %w", tu.Email, err)
	}
	return User{
		Principal: authz.NewPrincipal(tu.ID, tu.Email, role,
			tu.EmailVerified, tu.OnboardingCompleted, tu.ProviderVerified),
		PasswordHash: tu.Password,
	}, nil
}

func (t *TestUsersStore) Users(_ context.Context) ([]User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]User(nil), t.users...), nil
}

func (t *TestUsersStore) UserByID(_ context.Context, id string) (User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: %v", authz.ErrAccountNotFound, id)
}

func (t *TestUsersStore) SetProviderVerified(_ context.Context, id string, verified bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, u := range t.users {
		if u.ID == id {
			t.users[i].Principal = u.WithProviderVerified(verified)
			return nil
		}
	}
	return fmt.Errorf("%w: %v", authz.ErrAccountNotFound, id)
}
