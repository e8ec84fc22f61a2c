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
	"database/sql"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"log/slog"
)

// DBQuerier reads accounts from the ACCOUNT table.
type DBQuerier struct {
	db store.DB
}

var _ Querier = (*DBQuerier)(nil)

func NewDBQuerier(db *sql.DB) *DBQuerier {
	return &DBQuerier{db: store.DB{DB: db}}
}

func userFromAccount(a store.Account) (User, error) {
	role, err := authz.ParseRole(a.Role)
	if err != nil {
		return User{}, fmt.Errorf("account %v: %w", a.ID, err)
	}
	return User{
		Principal: authz.NewPrincipal(a.ID, a.Email, role,
			a.EmailVerified, a.OnboardingCompleted, a.ProviderVerified.Valid && a.ProviderVerified.Bool),
		PasswordHash: a.PasswordHash,
	}, nil
}

func (q *DBQuerier) Users(ctx context.Context) ([]User, error) {
	accounts, err := store.Accounts(ctx, q.db)
	if err != nil {
		return nil, fmt.Errorf("[Accounts]: %w", err)
	}
	users := make([]User, 0, len(accounts))
	for _, a := range accounts {
		u, err := userFromAccount(a)
		if err != nil {
			// One bad row shouldn't lock everyone out.
			slog.Error("Skipping unreadable account", "err", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (q *DBQuerier) UserByID(ctx context.Context, id string) (User, error) {
	a, err := store.AccountByID(ctx, q.db, id)
	if errors.Is(err, store.ErrNoAccount) {
		return User{}, fmt.Errorf("%w: %w", authz.ErrAccountNotFound, err)
	}
	if err != nil {
		return User{}, fmt.Errorf("[AccountByID]: %w", err)
	}
	return userFromAccount(a)
}

func (q *DBQuerier) SetProviderVerified(ctx context.Context, id string, verified bool) error {
	err := store.SetProviderVerified(ctx, q.db, id, verified)
	if errors.Is(err, store.ErrNoAccount) {
		return fmt.Errorf("%w: %w", authz.ErrAccountNotFound, err)
	}
	return err
}

// SeedTestUsers copies configured test users into the ACCOUNT table. It's
// meant for the in-process fake DB, which starts out empty.
func SeedTestUsers(ctx context.Context, db *sql.DB, testUsers []conf.TestUser) error {
	for _, tu := range testUsers {
		u, err := userFromTestUser(tu)
		if err != nil {
			return err
		}
		a := store.Account{
			ID:                  u.ID,
			Email:               u.Email,
			PasswordHash:        u.PasswordHash,
			Role:                string(u.Role),
			EmailVerified:       u.EmailVerified,
			OnboardingCompleted: u.OnboardingCompleted,
		}
		if u.ProviderVerified != nil {
			a.ProviderVerified = sql.NullBool{Bool: *u.ProviderVerified, Valid: true}
		}
		if err = store.InsertAccount(ctx, store.DB{DB: db}, a); err != nil {
			return fmt.Errorf("[InsertAccount] %v: %w", tu.Email, err)
		}
	}
	slog.Info("Seeded test users into the directory", "count", len(testUsers))
	return nil
}
