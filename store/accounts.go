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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Account is a row of the ACCOUNT table.
type Account struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                string
	EmailVerified       bool
	OnboardingCompleted bool
	ProviderVerified    sql.NullBool
}

var ErrNoAccount = errors.New("no such account")

const accountColumns = `ID, EMAIL, PASSWORD, ROLE, EMAIL_VERIFIED, ONBOARDING_COMPLETED, PROVIDER_VERIFIED`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role,
		&a.EmailVerified, &a.OnboardingCompleted, &a.ProviderVerified)
	return a, err
}

func AccountByID(ctx context.Context, db DBTX, id string) (Account, error) {
	a, err := scanAccount(db.QueryRowContext(ctx, `-- name: AccountByID
		select `+accountColumns+` from ACCOUNT where ID = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %v", ErrNoAccount, id)
	}
	if err != nil {
		return Account{}, fmt.Errorf("[Scan]: %w", err)
	}
	return a, nil
}

func Accounts(ctx context.Context, db DBTX) ([]Account, error) {
	rows, err := db.QueryContext(ctx, `-- name: Accounts
		select `+accountColumns+` from ACCOUNT order by EMAIL`)
	if err != nil {
		return nil, fmt.Errorf("[QueryContext]: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("[Scan]: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("[rows.Err]: %w", err)
	}
	return accounts, nil
}

func InsertAccount(ctx context.Context, db DBTX, a Account) error {
	_, err := db.ExecContext(ctx, `-- name: InsertAccount
		insert into ACCOUNT (`+accountColumns+`) values (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Role, a.EmailVerified, a.OnboardingCompleted, a.ProviderVerified,
	)
	if err != nil {
		return fmt.Errorf("[ExecContext]: %w", err)
	}
	return nil
}

// SetProviderVerified only touches provider accounts.
func SetProviderVerified(ctx context.Context, db DBTX, id string, verified bool) error {
	res, err := db.ExecContext(ctx, `-- name: SetProviderVerified
		update ACCOUNT set PROVIDER_VERIFIED = ? where ID = ? and ROLE = 'provider'`,
		verified, id,
	)
	if err != nil {
		return fmt.Errorf("[ExecContext]: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("[RowsAffected]: %w", err)
	}
	if n == 0 {
		// MySQL doesn't count rows that already held the value, so look again.
		a, err := AccountByID(ctx, db, id)
		if err != nil {
			return err
		}
		if a.Role != "provider" {
			return fmt.Errorf("%w: %v is not a provider", ErrNoAccount, id)
		}
	}
	return nil
}
