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

// Package sessionstore holds the client's token pair and last-login time.
// It is written only by the refresh coordinator and the logout path.
package sessionstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/natefinch/atomic"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/conv"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Kind string

const (
	KindAccess      Kind = "access"
	KindRefresh     Kind = "refresh"
	KindLastLoginAt Kind = "lastLoginAt"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindLastLoginAt:
		return true
	default:
		return false
	}
}

var ErrUnknownKind = errors.New("unknown session store kind")

type Store interface {
	Get(kind Kind) (string, bool)
	Set(kind Kind, value string) error
	// SetAll applies several values in one write. An empty value deletes.
	SetAll(values map[Kind]string) error
	Clear() error
}

// Pair reads the stored tokens. Either may be empty.
func Pair(s Store) authz.TokenPair {
	access, _ := s.Get(KindAccess)
	refresh, _ := s.Get(KindRefresh)
	return authz.TokenPair{AccessToken: access, RefreshToken: refresh}
}

// SetPair stores both tokens together. The refresh token that minted a new
// access token has been spent, so the two must never be persisted apart.
func SetPair(s Store, pair authz.TokenPair) error {
	return s.SetAll(map[Kind]string{
		KindAccess:  pair.AccessToken,
		KindRefresh: pair.RefreshToken,
	})
}

func validKinds(values map[Kind]string) error {
	for kind := range values {
		if !kind.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
	}
	return nil
}

func apply(dst, values map[Kind]string) {
	for kind, v := range values {
		if v == "" {
			delete(dst, kind)
		} else {
			dst[kind] = v
		}
	}
}

// LastLoginAt is stored as integer milliseconds.
func LastLoginAt(s Store) (time.Time, bool) {
	v, ok := s.Get(KindLastLoginAt)
	if !ok {
		return time.Time{}, false
	}
	ms, err := conv.ParseInt64(v)
	if err != nil {
		return time.Time{}, false
	}
	return conv.MillisToTime(ms), true
}

func SetLastLoginAt(s Store, t time.Time) error {
	return s.Set(KindLastLoginAt, conv.FormatInt(conv.TimeToMillis(t)))
}

type Memory struct {
	mu     sync.Mutex
	values map[Kind]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{values: make(map[Kind]string)}
}

func (m *Memory) Get(kind Kind) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[kind]
	return v, ok
}

func (m *Memory) Set(kind Kind, value string) error {
	return m.SetAll(map[Kind]string{kind: value})
}

func (m *Memory) SetAll(values map[Kind]string) error {
	if err := validKinds(values); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(m.values, values)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}

// File is a Store that survives a restart. Every write replaces the whole
// file atomically, so a crash leaves either the old or the new contents.
type File struct {
	mu     sync.Mutex
	path   string
	values map[Kind]string
}

var _ Store = (*File)(nil)

// OpenFile loads the store at path. A file that doesn't exist yet is an
// empty store.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, values: make(map[Kind]string)}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[ReadFile]: %w", err)
	}
	if len(b) == 0 {
		return f, nil
	}
	if err = json.Unmarshal(b, &f.values); err != nil {
		return nil, fmt.Errorf("[Unmarshal] %v: %w", path, err)
	}
	for k := range f.values {
		if !k.Valid() {
			delete(f.values, k)
		}
	}
	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Get(kind Kind) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[kind]
	return v, ok
}

func (f *File) Set(kind Kind, value string) error {
	return f.SetAll(map[Kind]string{kind: value})
}

func (f *File) SetAll(values map[Kind]string) error {
	if err := validKinds(values); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f.values, values)
	return f.persist()
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.values)
	return f.persist()
}

// persist must be called with f.mu held.
func (f *File) persist() error {
	b, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("[Marshal]: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("[MkdirAll]: %w", err)
	}
	if err = atomic.WriteFile(f.path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("[atomic.WriteFile]: %w", err)
	}
	// Tokens are credentials.
	if err = os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("[Chmod]: %w", err)
	}
	return nil
}
