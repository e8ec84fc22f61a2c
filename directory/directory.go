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
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authn"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/cache"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"log/slog"
	"strings"
	"time"
)

// User is an account as the directory knows it.
type User struct {
	authz.Principal
	PasswordHash string
}

// Querier is a source of accounts. UserByID must wrap authz.ErrAccountNotFound
// when there's no such user.
type Querier interface {
	Users(ctx context.Context) ([]User, error)
	UserByID(ctx context.Context, id string) (User, error)
	SetProviderVerified(ctx context.Context, id string, verified bool) error
}

var (
	ErrBadCredentials = errors.New("invalid email or password")
	ErrNotProvider    = errors.New("account is not a provider")
)

// UserStore is the server's view of accounts. Sign-in goes through a cached
// email index; anything that decides authorization reads the account fresh.
type UserStore struct {
	q          Querier
	emailIndex *cache.InMemory[map[string]User]
}

var _ authz.UserLookup = (*UserStore)(nil)

func NewUserStore(q Querier, cacheTTL time.Duration, clk clock.Clock) *UserStore {
	us := &UserStore{q: q}
	us.emailIndex = cache.New(cacheTTL, us.loadEmailIndex, cache.WithClock[map[string]User](clk))
	return us
}

func (us *UserStore) loadEmailIndex(ctx context.Context) (map[string]User, error) {
	start := time.Now()
	users, err := us.q.Users(ctx)
	slog.Debug("Loaded directory email index",
		"users", len(users),
		"durationish", fmt.Sprintf("%.3fms", float64(time.Since(start).Microseconds())/1000.0),
		"err", err,
	)
	if err != nil {
		return nil, fmt.Errorf("[Users]: %w", err)
	}
	index := make(map[string]User, len(users))
	for _, u := range users {
		index[normalizeEmail(u.Email)] = u
	}
	return index, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks an email and password. A wrong password and an unknown
// email give the same error.
func (us *UserStore) Authenticate(ctx context.Context, email, password string) (authz.Principal, error) {
	index, err := us.emailIndex.Get(ctx)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("[emailIndex.Get]: %w", err)
	}
	u, ok := (*index)[normalizeEmail(email)]
	if !ok {
		return authz.Principal{}, ErrBadCredentials
	}
	valid, err := authn.Verify(password, u.PasswordHash)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("[authn.Verify]: %w", err)
	}
	if !valid {
		return authz.Principal{}, ErrBadCredentials
	}
	// The index may be stale, so the Principal comes from a fresh read.
	return us.UserByID(ctx, u.ID)
}

// UserByID implements authz.UserLookup.
func (us *UserStore) UserByID(ctx context.Context, id string) (authz.Principal, error) {
	u, err := us.q.UserByID(ctx, id)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("[UserByID]: %w", err)
	}
	return u.Principal, nil
}

// ProviderVerified is the authoritative answer to whether a provider has
// been approved. It never comes from a cache.
func (us *UserStore) ProviderVerified(ctx context.Context, id string) (bool, error) {
	p, err := us.UserByID(ctx, id)
	if err != nil {
		return false, err
	}
	if p.Role != authz.RoleProvider {
		return false, fmt.Errorf("%w: %v", ErrNotProvider, id)
	}
	return p.IsProviderVerified(), nil
}

func (us *UserStore) SetProviderVerified(ctx context.Context, id string, verified bool) error {
	p, err := us.UserByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Role != authz.RoleProvider {
		return fmt.Errorf("%w: %v", ErrNotProvider, id)
	}
	if err = us.q.SetProviderVerified(ctx, id, verified); err != nil {
		return fmt.Errorf("[SetProviderVerified]: %w", err)
	}
	us.emailIndex.Invalidate()
	return nil
}
