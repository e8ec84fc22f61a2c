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

package cache

import (
	"context"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/clock"
	"sync"
	"sync/atomic"
	"time"
)

// InMemory holds one value of type T that's reloaded at most once per ttl.
// Concurrent readers share a single reload.
type InMemory[T any] struct {
	dataPtr   atomic.Pointer[dataAndTime[T]]
	ttl       time.Duration
	refresher func(context.Context) (T, error)
	clk       clock.Clock
	writeMu   sync.Mutex
}

type dataAndTime[T any] struct {
	data  T
	time  time.Time
	valid bool
}

type Option[T any] func(*InMemory[T])

// WithClock replaces the wall clock used for ttl checks.
func WithClock[T any](clk clock.Clock) Option[T] {
	return func(im *InMemory[T]) {
		im.clk = clk
	}
}

// New creates a new InMemory cache. The ttl indicates how long a cached value is valid, and the refresher
// function is what fetches a new value for the cache when a refresh is needed.
func New[T any](
	ttl time.Duration,
	refresher func(context.Context) (T, error),
	opts ...Option[T],
) *InMemory[T] {
	im := &InMemory[T]{
		ttl:       ttl,
		refresher: refresher,
		clk:       clock.Real{},
	}
	for _, opt := range opts {
		opt(im)
	}
	im.dataPtr.Store(&dataAndTime[T]{})
	return im
}

func (im *InMemory[T]) Get(ctx context.Context) (*T, error) {
	val, err := im.maybeRefreshAndGet(ctx)
	if err != nil {
		return nil, fmt.Errorf("[maybeRefreshAndGet]: %w", err)
	}
	return val, nil
}

// Invalidate forces the next Get to reload.
func (im *InMemory[T]) Invalidate() {
	im.writeMu.Lock()
	defer im.writeMu.Unlock()
	im.dataPtr.Store(&dataAndTime[T]{})
}

func (im *InMemory[T]) stillValid(v *dataAndTime[T]) bool {
	return v.valid && im.clk.Now().Before(v.time.Add(im.ttl))
}

func (im *InMemory[T]) maybeRefreshAndGet(ctx context.Context) (*T, error) {
	v := im.dataPtr.Load()
	if im.stillValid(v) {
		return &v.data, nil
	}
	im.writeMu.Lock()
	defer im.writeMu.Unlock()
	// another caller might have refreshed it while we waited
	v = im.dataPtr.Load()
	if im.stillValid(v) {
		return &v.data, nil
	}
	newVal, err := im.refresher(ctx)
	if err != nil {
		return nil, fmt.Errorf("[refresher]: %w", err)
	}
	im.dataPtr.Store(&dataAndTime[T]{
		data:  newVal,
		time:  im.clk.Now(),
		valid: true,
	})
	return &newVal, nil
}
