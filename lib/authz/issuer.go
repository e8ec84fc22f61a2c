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

package authz

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"time"
)

var (
	ErrAccountNotFound    = errors.New("account no longer exists")
	ErrRefreshTokenReused = errors.New("refresh token was already used")

	// ErrRefreshRejected wraps every reason a refresh token cannot mint a new pair.
	ErrRefreshRejected = errors.New("refresh rejected")
)

// UserLookup re-reads the current state of an account. It must return an
// error wrapping ErrAccountNotFound when the account is gone.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (Principal, error)
}

// RefreshLedger records spent refresh tokens. Consume must succeed exactly once
// per tokenID and return an error wrapping ErrRefreshTokenReused after that.
type RefreshLedger interface {
	Consume(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type IssuerConfig struct {
	AccessSecret         string
	RefreshSecret        string
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Issuer is the server side of the token lifecycle.
type Issuer struct {
	jwter  JWTer
	cfg    IssuerConfig
	users  UserLookup
	ledger RefreshLedger
}

func NewIssuer(cfg IssuerConfig, users UserLookup, ledger RefreshLedger) (*Issuer, error) {
	var errs []error
	if cfg.AccessSecret == "" {
		errs = append(errs, errors.New("access token secret is required"))
	}
	if cfg.RefreshSecret == "" {
		errs = append(errs, errors.New("refresh token secret is required"))
	}
	if cfg.AccessTokenLifetime <= 0 {
		errs = append(errs, errors.New("access token lifetime must be positive"))
	}
	if cfg.RefreshTokenLifetime <= 0 {
		errs = append(errs, errors.New("refresh token lifetime must be positive"))
	}
	if users == nil {
		errs = append(errs, errors.New("user lookup is required"))
	}
	if ledger == nil {
		errs = append(errs, errors.New("refresh ledger is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{
		jwter: JWTer{
			AccessSecret:  cfg.AccessSecret,
			RefreshSecret: cfg.RefreshSecret,
			Now:           cfg.Now,
		},
		cfg:    cfg,
		users:  users,
		ledger: ledger,
	}, nil
}

// JWTer is the verifier that matches this Issuer's secrets and clock.
func (is *Issuer) JWTer() JWTer {
	return is.jwter
}

// IssuePair starts a new session for p.
func (is *Issuer) IssuePair(ctx context.Context, p Principal) (TokenPair, error) {
	return is.issue(p, uuid.NewString(), time.Time{})
}

// Refresh trades a refresh token for a new pair in the same session. It
// always re-reads the account, so role and verification changes made since
// the last issuance show up in the new access token. The token is only spent
// once the new pair exists, so a failed lookup leaves it usable for a retry.
func (is *Issuer) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	claims, err := is.jwter.AuthenticateRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, Principal{}, fmt.Errorf("%w: %w", ErrRefreshRejected, err)
	}
	p, err := is.users.UserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TokenPair{}, Principal{}, fmt.Errorf("%w: %w", ErrRefreshRejected, err)
		}
		return TokenPair{}, Principal{}, fmt.Errorf("[UserByID]: %w", err)
	}
	var previous time.Time
	if claims.AccessExpiresAt != 0 {
		previous = time.Unix(claims.AccessExpiresAt, 0)
	}
	pair, err := is.issue(p, claims.SessionID, previous)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if err = is.ledger.Consume(ctx, claims.ID, claims.Expiration()); err != nil {
		if errors.Is(err, ErrRefreshTokenReused) {
			return TokenPair{}, Principal{}, fmt.Errorf("%w: [Consume]: %w", ErrRefreshRejected, err)
		}
		return TokenPair{}, Principal{}, fmt.Errorf("[Consume]: %w", err)
	}
	return pair, p, nil
}

// Revoke spends a refresh token without issuing anything, as on logout.
// Tokens that fail verification are ignored.
func (is *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := is.jwter.AuthenticateRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	err = is.ledger.Consume(ctx, claims.ID, claims.Expiration())
	if err != nil && !errors.Is(err, ErrRefreshTokenReused) {
		return fmt.Errorf("[Consume]: %w", err)
	}
	return nil
}

// issue mints both tokens. Token timestamps are whole seconds, so the access
// expiration is bumped past previousAccessExp when two issuances fall in the
// same second.
func (is *Issuer) issue(p Principal, sessionID string, previousAccessExp time.Time) (TokenPair, error) {
	now := is.cfg.Now()
	accessExp := now.Add(is.cfg.AccessTokenLifetime).Truncate(time.Second)
	if !previousAccessExp.IsZero() && !accessExp.After(previousAccessExp) {
		accessExp = previousAccessExp.Add(time.Second)
	}
	access, err := is.jwter.CreateAccessToken(p, sessionID, accessExp)
	if err != nil {
		return TokenPair{}, fmt.Errorf("[CreateAccessToken]: %w", err)
	}
	refresh, err := is.jwter.CreateRefreshToken(p.ID, sessionID, accessExp, now.Add(is.cfg.RefreshTokenLifetime))
	if err != nil {
		return TokenPair{}, fmt.Errorf("[CreateRefreshToken]: %w", err)
	}
	return TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		SessionID:       sessionID,
		AccessExpiresAt: accessExp,
	}, nil
}
