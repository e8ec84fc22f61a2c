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

package authlog

import (
	"context"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"log/slog"
	"sync"
	"time"
)

const (
	workQueueMaxLength = 1024
	insertDeadline     = 10 * time.Second
)

// Event kinds.
const (
	KindLogin          = "login"
	KindLoginFailed    = "login_failed"
	KindRefresh        = "refresh"
	KindRefreshFailed  = "refresh_failed"
	KindLogout         = "logout"
	KindSessionTimeout = "session_timeout"
	KindVerification   = "provider_verification"
)

// Logger writes AUTH_EVENT rows off the request path. When the queue is full,
// events are dropped rather than blocking a login.
type Logger struct {
	work                chan store.AuthEvent
	db                  store.DBTX
	enabled             bool
	synchronousForTests bool
	mu                  sync.RWMutex
	closed              bool
	done                chan struct{}
}

func NewLogger(
	ctx context.Context,
	db store.DBTX,
	enabled bool,
	synchronousForTests bool,
) *Logger {
	logger := &Logger{
		work:                make(chan store.AuthEvent, workQueueMaxLength),
		db:                  db,
		enabled:             enabled,
		synchronousForTests: synchronousForTests,
		done:                make(chan struct{}),
	}
	go logger.startWorker(ctx)
	return logger
}

// Log queues an event. A nil Logger logs nothing.
func (l *Logger) Log(ctx context.Context, e store.AuthEvent) {
	if l == nil || !l.enabled {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if l.synchronousForTests {
		l.writeRow(ctx, e)
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.work <- e:
	default:
		slog.Warn("authlog queue full, dropping event", "kind", e.Kind, "userID", e.UserID)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (l *Logger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.work)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Logger) startWorker(ctx context.Context) {
	defer close(l.done)
	for row := range l.work {
		l.writeRow(ctx, row)
	}
	slog.Info("authlog.Logger worker finished")
}

func (l *Logger) writeRow(ctx context.Context, row store.AuthEvent) {
	// Detached from ctx, so that there's still a chance to write the final
	// rows after the server's context is cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertDeadline)
	defer cancel()
	if err := store.InsertAuthEvent(ctx, l.db, row); err != nil {
		slog.Error("failed to add auth event to db", "error", err)
	}
}
