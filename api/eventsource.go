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
	"context"
	"encoding/json"
	"github.com/launchdarkly/eventsource"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// SSE event names.
const (
	EventProviderVerified = onusjson.EventProviderVerified
	EventInitialState     = onusjson.EventInitialState
)

const verificationChannelPrefix = "provider-verification/"

const replayLookupTimeout = 5 * time.Second

// VerificationChannel is the SSE channel for one provider's verification changes.
func VerificationChannel(userID string) string {
	return verificationChannelPrefix + userID
}

// VerificationSource reports the current verification state of a provider.
type VerificationSource interface {
	ProviderVerified(ctx context.Context, userID string) (bool, error)
}

type VerificationEvent struct {
	EventID int64
	Initial bool
	Payload onusjson.ProviderVerifiedEvent
}

func (e VerificationEvent) Id() string {
	return strconv.FormatInt(e.EventID, 10)
}

func (e VerificationEvent) Event() string {
	if e.Initial {
		return EventInitialState
	}
	return EventProviderVerified
}

func (e VerificationEvent) Data() string {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		slog.Error("Error converting VerificationEvent to JSON", "data", e.Payload, "err", err)
	}
	return string(b)
}

type EventSourcerer struct {
	Server    *eventsource.Server
	IdCounter atomic.Int64
	source    VerificationSource
}

// NewEventSourcerer makes the SSE server. When source is non-nil, every new
// subscriber is first sent the provider's current verification state.
func NewEventSourcerer(source VerificationSource) *EventSourcerer {
	es := &EventSourcerer{
		Server: eventsource.NewServer(),
		source: source,
	}
	es.Server.ReplayAll = true
	return es
}

// Handler serves the SSE stream for one user.
func (es *EventSourcerer) Handler(userID string) http.Handler {
	channel := VerificationChannel(userID)
	es.Server.Register(channel, es)
	return es.Server.Handler(channel)
}

func (es *EventSourcerer) Replay(channel, id string) chan eventsource.Event {
	out := make(chan eventsource.Event, 1)
	defer close(out)
	userID, ok := strings.CutPrefix(channel, verificationChannelPrefix)
	if !ok || userID == "" || es.source == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(context.Background(), replayLookupTimeout)
	defer cancel()
	verified, err := es.source.ProviderVerified(ctx, userID)
	if err != nil {
		// Not a provider, or the lookup failed. Either way there's no state worth sending.
		slog.Debug("No initial verification state for SSE subscriber", "userID", userID, "err", err)
		return out
	}
	out <- VerificationEvent{
		EventID: es.IdCounter.Load(),
		Initial: true,
		Payload: onusjson.ProviderVerifiedEvent{UserID: userID, Verified: verified},
	}
	return out
}

func (es *EventSourcerer) notifyProviderVerified(userID string, verified bool) {
	if userID == "" {
		return
	}
	es.Server.Publish([]string{VerificationChannel(userID)}, VerificationEvent{
		EventID: es.IdCounter.Add(1),
		Payload: onusjson.ProviderVerifiedEvent{UserID: userID, Verified: verified},
	})
}
