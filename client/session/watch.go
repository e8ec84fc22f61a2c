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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/launchdarkly/eventsource"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/gate"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/sessionstore"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"net/http"
	"time"
)

const streamInitialRetry = 2 * time.Second

var ErrStreamClosed = errors.New("verification stream closed")

// WatchVerification follows the signed-in provider's verification events
// until ctx is done or the server turns the stream away. An event is only a
// hint: each one triggers a live status check, and onChange gets the
// server's answer.
func (c *Client) WatchVerification(ctx context.Context, onChange func(verified bool)) error {
	p := c.holder.Get()
	if p == nil || p.Role != authz.RoleProvider {
		return gate.ErrNotProvider
	}
	access, _ := c.store.Get(sessionstore.KindAccess)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+EventsPath, nil)
	if err != nil {
		return fmt.Errorf("[NewRequestWithContext]: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)

	// The stream is long-lived, so it can't share the request timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	stream, err := eventsource.SubscribeWithRequestAndOptions(req,
		eventsource.StreamOptionHTTPClient(streamClient),
		eventsource.StreamOptionInitialRetry(streamInitialRetry),
		eventsource.StreamOptionErrorHandler(func(err error) eventsource.StreamErrorHandlerResult {
			var subErr eventsource.SubscriptionError
			if errors.As(err, &subErr) && subErr.Code == http.StatusUnauthorized {
				return eventsource.StreamErrorHandlerResult{CloseNow: true}
			}
			c.logger.Debug("Verification stream error, reconnecting", "err", err)
			return eventsource.StreamErrorHandlerResult{}
		}),
	)
	if err != nil {
		return fmt.Errorf("[SubscribeWithRequestAndOptions]: %w", err)
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events:
			if !ok {
				return ErrStreamClosed
			}
			c.handleVerificationEvent(ctx, p.ID, ev, onChange)
		}
	}
}

func (c *Client) handleVerificationEvent(ctx context.Context, userID string, ev eventsource.Event, onChange func(bool)) {
	if ev.Event() != onusjson.EventProviderVerified && ev.Event() != onusjson.EventInitialState {
		return
	}
	var data onusjson.ProviderVerifiedEvent
	if err := json.Unmarshal([]byte(ev.Data()), &data); err != nil {
		c.logger.Warn("Unreadable verification event", "data", ev.Data(), "err", err)
		return
	}
	if data.UserID != userID {
		return
	}
	verified, err := c.gate.Reverify(ctx)
	if err != nil {
		c.logger.Warn("Live verification check failed", "err", err)
		return
	}
	if onChange != nil {
		onChange(verified)
	}
}
