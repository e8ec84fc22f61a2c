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

package activity

import (
	"sync"
	"time"
)

type EventKind int

const (
	Pointer EventKind = iota
	Key
	Scroll
	Touch
)

func (k EventKind) String() string {
	switch k {
	case Pointer:
		return "pointer"
	case Key:
		return "key"
	case Scroll:
		return "scroll"
	case Touch:
		return "touch"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	At   time.Time
}

// Hub is the process-level source of interaction events. At most one
// Monitor listens to a hub at a time; the claim belongs to the hub, so two
// hubs never interfere.
type Hub struct {
	mu    sync.Mutex
	owner *Monitor
}

func NewHub() *Hub {
	return &Hub{}
}

// Dispatch hands an event to the claiming monitor, if any. It never does I/O
// or waits on a timer.
func (h *Hub) Dispatch(ev Event) {
	h.mu.Lock()
	owner := h.owner
	h.mu.Unlock()
	if owner != nil {
		owner.recordActivity(ev)
	}
}

// Claimed reports whether a monitor is listening.
func (h *Hub) Claimed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner != nil
}

func (h *Hub) claim(m *Monitor) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner != nil && h.owner != m {
		return false
	}
	h.owner = m
	return true
}

func (h *Hub) release(m *Monitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == m {
		h.owner = nil
	}
}
