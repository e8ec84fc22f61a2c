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
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"sync"
	"time"
)

// Ledger records every refresh token that has been exchanged, so that a
// refresh token mints at most one new pair. Rows are kept until the token
// would have expired anyway.
type Ledger interface {
	authz.RefreshLedger
	// Prune forgets tokens that expired before now.
	Prune(ctx context.Context) (int64, error)
}

// SQLLedger keeps the ledger in the REFRESH_TOKEN_USE table. The primary key
// on TOKEN_ID makes Consume atomic across server instances.
type SQLLedger struct {
	db  DB
	clk clock.Clock
}

var _ Ledger = (*SQLLedger)(nil)

func NewSQLLedger(db *sql.DB, clk clock.Clock) *SQLLedger {
	return &SQLLedger{db: DB{db}, clk: clk}
}

func (l *SQLLedger) Consume(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `-- name: ConsumeRefreshToken
		insert into REFRESH_TOKEN_USE (TOKEN_ID, EXPIRES_AT, USED_AT) values (?, ?, ?)`,
		tokenID, expiresAt.Unix(), l.clk.Now().Unix(),
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("%w: %v", authz.ErrRefreshTokenReused, tokenID)
	}
	if err != nil {
		return fmt.Errorf("[ExecContext]: %w", err)
	}
	return nil
}

func (l *SQLLedger) Prune(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, `-- name: PruneRefreshTokens
		delete from REFRESH_TOKEN_USE where EXPIRES_AT < ?`,
		l.clk.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("[ExecContext]: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("[RowsAffected]: %w", err)
	}
	return n, nil
}

// MemoryLedger is a Ledger for a single process. It's used when there's no
// real database behind the server.
type MemoryLedger struct {
	mu   sync.Mutex
	used map[string]time.Time
	clk  clock.Clock
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(clk clock.Clock) *MemoryLedger {
	return &MemoryLedger{used: make(map[string]time.Time), clk: clk}
}

func (l *MemoryLedger) Consume(_ context.Context, tokenID string, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.used[tokenID]; ok {
		return fmt.Errorf("%w: %v", authz.ErrRefreshTokenReused, tokenID)
	}
	l.used[tokenID] = expiresAt
	return nil
}

func (l *MemoryLedger) Prune(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clk.Now()
	var n int64
	for id, exp := range l.used {
		if exp.Before(now) {
			delete(l.used, id)
			n++
		}
	}
	return n, nil
}

// Len is the number of tokens currently remembered.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.used)
}
