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

package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"io"
	"net/http"
	"strings"
)

const RefreshPath = "/api/auth/refresh-token"

// maxProblemBytes bounds how much of an error response gets read.
const maxProblemBytes = 64 << 10

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (authz.TokenPair, error)
}

// HTTPRefresher trades a refresh token with the server.
type HTTPRefresher struct {
	BaseURL string
	Client  *http.Client
}

var _ Refresher = HTTPRefresher{}

func (r HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (authz.TokenPair, error) {
	var empty authz.TokenPair
	body, err := json.Marshal(onusjson.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return empty, fmt.Errorf("[Marshal]: %w", err)
	}
	url := strings.TrimSuffix(r.BaseURL, "/") + RefreshPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return empty, fmt.Errorf("[NewRequestWithContext]: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return empty, &ConnectivityError{Method: req.Method, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		p := ReadProblem(resp)
		if resp.StatusCode == http.StatusUnauthorized && p.Code == herr.CodeSessionTimeout {
			return empty, ErrSessionTimedOut
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			// The server couldn't judge the token, so it may well still be good.
			return empty, &StatusError{StatusCode: resp.StatusCode, Problem: p}
		}
		return empty, &AuthError{StatusCode: resp.StatusCode, Problem: p}
	}
	var rr onusjson.RefreshResponse
	if err = json.NewDecoder(io.LimitReader(resp.Body, maxProblemBytes)).Decode(&rr); err != nil {
		return empty, fmt.Errorf("[Decode]: %w", err)
	}
	if rr.Tokens.AccessToken == "" || rr.Tokens.RefreshToken == "" {
		return empty, errors.New("refresh response is missing a token")
	}
	return rr.Tokens, nil
}

// ReadProblem drains and decodes an error body. A body that isn't a problem
// gives a Problem with just the status.
func ReadProblem(resp *http.Response) herr.Problem {
	p := herr.Problem{Status: resp.StatusCode}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxProblemBytes))
	if err != nil || len(b) == 0 {
		return p
	}
	_ = json.Unmarshal(b, &p)
	if p.Status == 0 {
		p.Status = resp.StatusCode
	}
	return p
}
