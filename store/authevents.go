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
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/conv"
	"time"
)

// AuthEvent is a row of the AUTH_EVENT table.
type AuthEvent struct {
	CreatedAt time.Time
	Kind      string
	UserID    string
	SessionID string
	Detail    string
}

func InsertAuthEvent(ctx context.Context, db DBTX, e AuthEvent) error {
	_, err := db.ExecContext(ctx, `-- name: InsertAuthEvent
		insert into AUTH_EVENT (CREATED_AT, KIND, USER_ID, SESSION_ID, DETAIL) values (?, ?, ?, ?, ?)`,
		conv.TimeToMillis(e.CreatedAt), e.Kind, e.UserID, e.SessionID, conv.EmptyToNil(e.Detail),
	)
	if err != nil {
		return fmt.Errorf("[ExecContext]: %w", err)
	}
	return nil
}

// AuthEventsForUser returns a user's events, oldest first.
func AuthEventsForUser(ctx context.Context, db DBTX, userID string) ([]AuthEvent, error) {
	rows, err := db.QueryContext(ctx, `-- name: AuthEventsForUser
		select CREATED_AT, KIND, USER_ID, SESSION_ID, coalesce(DETAIL, '')
		from AUTH_EVENT where USER_ID = ? order by ID`, userID)
	if err != nil {
		return nil, fmt.Errorf("[QueryContext]: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		var created int64
		if err := rows.Scan(&created, &e.Kind, &e.UserID, &e.SessionID, &e.Detail); err != nil {
			return nil, fmt.Errorf("[Scan]: %w", err)
		}
		e.CreatedAt = conv.MillisToTime(created)
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("[rows.Err]: %w", err)
	}
	return events, nil
}
