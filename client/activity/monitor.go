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

// Package activity tracks how long the user has been idle and runs the
// session warning and expiry state machine.
package activity

import (
	"context"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type Phase int

const (
	Active Phase = iota
	Warning
	Expired
)

func (p Phase) String() string {
	switch p {
	case Active:
		return "active"
	case Warning:
		return "warning"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

type State struct {
	LastActivityAt time.Time
	Phase          Phase
}

var (
	ErrExpired    = errors.New("session has expired")
	ErrNotRunning = errors.New("activity monitor is not running")
	ErrHubClaimed = errors.New("activity hub is already claimed by another monitor")
)

type Config struct {
	SessionTimeout time.Duration
	// WarningWindow is the length of the countdown at the end of SessionTimeout.
	WarningWindow time.Duration
	CountdownTick time.Duration
}

func DefaultConfig() Config {
	return Config{
		SessionTimeout: 30 * time.Minute,
		WarningWindow:  180 * time.Second,
		CountdownTick:  time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.SessionTimeout <= 0 {
		errs = append(errs, errors.New("session timeout must be positive"))
	}
	if c.WarningWindow <= 0 || c.WarningWindow >= c.SessionTimeout {
		errs = append(errs, fmt.Errorf("warning window %v must be positive and shorter than the session timeout %v",
			c.WarningWindow, c.SessionTimeout))
	}
	if c.CountdownTick <= 0 {
		errs = append(errs, errors.New("countdown tick must be positive"))
	}
	return errors.Join(errs...)
}

// warnAfter is the idle time at which Warning starts.
func (c Config) warnAfter() time.Duration {
	return c.SessionTimeout - c.WarningWindow
}

// Pinger tells the server the user is still there.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Monitor is driven by a single timer. Whenever it fires, the phase is
// recomputed from the idle time, so a timer that fires late, as after the
// process was suspended, skips straight to Expired.
type Monitor struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger
	pinger Pinger

	mu        sync.Mutex
	running   bool
	state     State
	remaining time.Duration
	timer     clock.Timer
	hub       *Hub

	onPhase     []func(Phase)
	onCountdown []func(time.Duration)
	onExpired   []func()

	activityCount atomic.Int64
}

type Option func(*Monitor)

func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) {
		m.clk = clk
	}
}

func WithPinger(p Pinger) Option {
	return func(m *Monitor) {
		m.pinger = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func New(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		cfg:    cfg,
		clk:    clock.Real{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// OnPhase registers f to be called on every phase change.
func (m *Monitor) OnPhase(f func(Phase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPhase = append(m.onPhase, f)
}

// OnCountdown registers f to be called once per countdown tick during Warning.
func (m *Monitor) OnCountdown(f func(remaining time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCountdown = append(m.onCountdown, f)
}

// OnExpired registers f to be called exactly once each time the session
// expires. It's the signal to log out locally, without calling the server.
func (m *Monitor) OnExpired(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = append(m.onExpired, f)
}

// Start begins a fresh idle window, as at login. It also brings the monitor
// back from Expired.
func (m *Monitor) Start() {
	m.mu.Lock()
	var n notification
	if m.state.Phase != Active {
		n.phase(Active)
	}
	m.running = true
	m.state = State{LastActivityAt: m.clk.Now(), Phase: Active}
	m.remaining = 0
	m.scheduleLocked(m.cfg.warnAfter())
	m.mu.Unlock()
	m.notify(n)
}

// Stop halts the timer and gives up the hub, as at logout.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if m.timer != nil {
		m.timer.Stop()
	}
	if m.hub != nil {
		m.hub.release(m)
		m.hub = nil
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remaining is what's left of the countdown. It is zero outside Warning.
func (m *Monitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != Warning {
		return 0
	}
	return m.remaining
}

// ActivityCount is the number of events this monitor has received.
func (m *Monitor) ActivityCount() int64 {
	return m.activityCount.Load()
}

// Attach makes this monitor the hub's only listener. If another monitor got
// there first, this one installs nothing, stops its own timer, and returns
// ErrHubClaimed.
func (m *Monitor) Attach(h *Hub) error {
	if !h.claim(m) {
		m.logger.Debug("Activity hub already claimed, standing down")
		m.Stop()
		return ErrHubClaimed
	}
	m.mu.Lock()
	m.hub = h
	m.mu.Unlock()
	return nil
}

// Continue is the user's answer to the warning. It restarts the idle clock
// from zero and pings the server, whose idle budget is separate.
func (m *Monitor) Continue(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	now := m.clk.Now()
	var n notification
	if m.state.Phase == Expired || now.Sub(m.state.LastActivityAt) >= m.cfg.SessionTimeout {
		n = m.expireLocked()
		m.mu.Unlock()
		m.notify(n)
		return ErrExpired
	}
	n = m.activeLocked(now)
	m.mu.Unlock()
	m.notify(n)

	if m.pinger == nil {
		return nil
	}
	if err := m.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("[Ping]: %w", err)
	}
	return nil
}

// Expire ends the session now, as when the server reports a timeout.
func (m *Monitor) Expire() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	n := m.expireLocked()
	m.mu.Unlock()
	m.notify(n)
}

func (m *Monitor) recordActivity(ev Event) {
	m.activityCount.Add(1)
	m.mu.Lock()
	if !m.running || m.state.Phase == Expired {
		m.mu.Unlock()
		return
	}
	now := m.clk.Now()
	var n notification
	if now.Sub(m.state.LastActivityAt) >= m.cfg.SessionTimeout {
		// The timer hasn't caught up with a long absence yet.
		n = m.expireLocked()
	} else if m.state.Phase == Warning {
		n = m.activeLocked(now)
	} else {
		// The timer rechecks when it fires, so there's no need to move it.
		m.state.LastActivityAt = now
	}
	m.mu.Unlock()
	m.notify(n)
}

func (m *Monitor) tick() {
	m.mu.Lock()
	if !m.running || m.state.Phase == Expired {
		m.mu.Unlock()
		return
	}
	idle := m.clk.Now().Sub(m.state.LastActivityAt)
	var n notification
	switch {
	case idle >= m.cfg.SessionTimeout:
		n = m.expireLocked()
	case idle >= m.cfg.warnAfter():
		if m.state.Phase != Warning {
			m.state.Phase = Warning
			n.phase(Warning)
		}
		m.remaining = m.cfg.SessionTimeout - idle
		n.countdown = m.remaining
		n.counting = true
		m.scheduleLocked(min(m.cfg.CountdownTick, m.remaining))
	default:
		// There was activity since this tick was scheduled.
		m.scheduleLocked(m.cfg.warnAfter() - idle)
	}
	m.mu.Unlock()
	m.notify(n)
}

// activeLocked must be called with m.mu held.
func (m *Monitor) activeLocked(now time.Time) notification {
	var n notification
	if m.state.Phase != Active {
		n.phase(Active)
	}
	m.state = State{LastActivityAt: now, Phase: Active}
	m.remaining = 0
	m.scheduleLocked(m.cfg.warnAfter())
	return n
}

// expireLocked must be called with m.mu held.
func (m *Monitor) expireLocked() notification {
	var n notification
	if m.state.Phase == Expired {
		return n
	}
	m.state.Phase = Expired
	m.remaining = 0
	if m.timer != nil {
		m.timer.Stop()
	}
	n.phase(Expired)
	n.expired = true
	return n
}

// scheduleLocked must be called with m.mu held.
func (m *Monitor) scheduleLocked(d time.Duration) {
	if m.timer == nil {
		m.timer = m.clk.AfterFunc(d, m.tick)
		return
	}
	m.timer.Reset(d)
}

// notification collects what observers need to hear about, so that they
// can be called after m.mu is released.
type notification struct {
	phases    []Phase
	countdown time.Duration
	counting  bool
	expired   bool
}

func (n *notification) phase(p Phase) {
	n.phases = append(n.phases, p)
}

func (m *Monitor) notify(n notification) {
	if len(n.phases) == 0 && !n.counting && !n.expired {
		return
	}
	m.mu.Lock()
	onPhase := append([]func(Phase){}, m.onPhase...)
	onCountdown := append([]func(time.Duration){}, m.onCountdown...)
	onExpired := append([]func(){}, m.onExpired...)
	m.mu.Unlock()

	for _, p := range n.phases {
		m.logger.Debug("Session phase changed", "phase", p)
		for _, f := range onPhase {
			f(p)
		}
	}
	if n.counting {
		for _, f := range onCountdown {
			f(n.countdown)
		}
	}
	if n.expired {
		for _, f := range onExpired {
			f()
		}
	}
}
