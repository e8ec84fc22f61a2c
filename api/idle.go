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

package api

import (
	"errors"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"sync"
	"time"
)

var ErrSessionIdle = errors.New("session has been idle too long")

type idleEntry struct {
	lastSeen time.Time
	timedOut bool
}

// IdleTracker is the server's own idle budget per session id. It is
// separate from token expiry: a session can hold perfectly valid tokens and
// still have timed out.
type IdleTracker struct {
	mu      sync.Mutex
	clk     clock.Clock
	timeout time.Duration
	// retain is how long a timed-out session is remembered, so that its
	// tokens keep getting SESSION_TIMEOUT rather than a fresh start.
	retain   time.Duration
	sessions map[string]*idleEntry
}

func NewIdleTracker(timeout, retain time.Duration, clk clock.Clock) *IdleTracker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &IdleTracker{
		clk:      clk,
		timeout:  timeout,
		retain:   max(retain, timeout),
		sessions: make(map[string]*idleEntry),
	}
}

func (t *IdleTracker) Timeout() time.Duration {
	return t.timeout
}

// Begin starts or restarts tracking for a session, as on login.
func (t *IdleTracker) Begin(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = &idleEntry{lastSeen: t.clk.Now()}
}

// Touch records activity for the session. It fails with ErrSessionIdle when
// the session had already gone idle, and the session stays timed out.
// A session the tracker doesn't know about, e.g. after a server restart,
// starts being tracked now.
func (t *IdleTracker) Touch(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clk.Now()
	e, err := t.check(sessionID, now)
	if err != nil {
		return err
	}
	e.lastSeen = now
	return nil
}

// Check is Touch without counting as activity.
func (t *IdleTracker) Check(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.check(sessionID, t.clk.Now())
	return err
}

// check must be called with t.mu held.
func (t *IdleTracker) check(sessionID string, now time.Time) (*idleEntry, error) {
	e, ok := t.sessions[sessionID]
	if !ok {
		e = &idleEntry{lastSeen: now}
		t.sessions[sessionID] = e
	}
	if !e.timedOut && now.Sub(e.lastSeen) >= t.timeout {
		e.timedOut = true
	}
	if e.timedOut {
		return e, ErrSessionIdle
	}
	return e, nil
}

// End forgets a session, as on logout.
func (t *IdleTracker) End(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}

// Prune forgets sessions that haven't been seen in longer than the retention
// period, and returns how many were dropped.
func (t *IdleTracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clk.Now()
	n := 0
	for id, e := range t.sessions {
		if now.Sub(e.lastSeen) >= t.retain {
			delete(t.sessions, id)
			n++
		}
	}
	return n
}

func (t *IdleTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
