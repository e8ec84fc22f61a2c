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

package gate

import (
	"context"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/client/refresh"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"log/slog"
	"net/http"
	"sync"
)

const ProviderStatusPath = "/api/provider/status"

var ErrNotProvider = errors.New("no provider is signed in")

// PrincipalHolder owns the client's cached Principal. A nil Principal means
// nobody is signed in.
type PrincipalHolder struct {
	mu sync.Mutex
	p  *authz.Principal
}

// Get returns a copy of the cached Principal, or nil.
func (h *PrincipalHolder) Get() *authz.Principal {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.p == nil {
		return nil
	}
	p := *h.p
	return &p
}

// Set replaces the cached Principal.
func (h *PrincipalHolder) Set(p authz.Principal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.p = &p
}

func (h *PrincipalHolder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.p = nil
}

// setProviderVerified replaces the cached Principal with one carrying the
// new verification state, if the same provider is still signed in.
func (h *PrincipalHolder) setProviderVerified(id string, verified bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.p == nil || h.p.ID != id || h.p.Role != authz.RoleProvider {
		return false
	}
	p := h.p.WithProviderVerified(verified)
	h.p = &p
	return true
}

type JSONDoer interface {
	DoJSON(ctx context.Context, method, url string, in, out any) error
}

var _ JSONDoer = (*refresh.Coordinator)(nil)

// StatusChecker asks the server whether the signed-in provider is verified.
type StatusChecker interface {
	ProviderVerified(ctx context.Context) (bool, error)
}

// Verifier checks provider status over HTTP, through the refresh coordinator.
type Verifier struct {
	BaseURL string
	Client  JSONDoer
}

var _ StatusChecker = Verifier{}

func (v Verifier) ProviderVerified(ctx context.Context) (bool, error) {
	var status onusjson.ProviderStatus
	err := v.Client.DoJSON(ctx, http.MethodGet, v.BaseURL+ProviderStatusPath, nil, &status)
	var statusErr *refresh.StatusError
	if errors.As(err, &statusErr) &&
		statusErr.StatusCode == http.StatusForbidden &&
		statusErr.Problem.Code == herr.CodeProviderNotVerified {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("[DoJSON]: %w", err)
	}
	return status.IsVerified, nil
}

// Gate combines Decide on the cached Principal with a live status check for
// provider routes, since verification can change while a token is valid.
type Gate struct {
	holder  *PrincipalHolder
	checker StatusChecker
	logger  *slog.Logger
}

func New(holder *PrincipalHolder, checker StatusChecker, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{holder: holder, checker: checker, logger: logger}
}

// Check decides for currentPath. For a signed-in, onboarded provider on a
// provider route or the pending page, the server's answer overrides the
// cached claim, and the cached Principal is updated to match it.
//
// When the live check fails, the cached decision comes back with the error,
// except for authorization failures, which send the user to sign in.
func (g *Gate) Check(ctx context.Context, currentPath string, guard Guard) (Decision, error) {
	p := g.holder.Get()
	d := Decide(p, guard, currentPath)
	if !g.needsLiveCheck(p, guard, currentPath, d) {
		return d, nil
	}

	verified, err := g.checker.ProviderVerified(ctx)
	if err != nil {
		var authErr *refresh.AuthError
		if errors.Is(err, refresh.ErrSessionTimedOut) || errors.As(err, &authErr) {
			return Decision{RedirectTo: SignInPath, ReturnTo: currentPath}, err
		}
		g.logger.Warn("Provider status check failed, using cached claim", "err", err)
		return d, err
	}
	if verified != p.IsProviderVerified() {
		g.logger.Info("Provider verification changed", "user", p.ID, "verified", verified)
		g.holder.setProviderVerified(p.ID, verified)
	}
	if !verified {
		if currentPath == VerificationPendingPath {
			return allow(), nil
		}
		return redirect(VerificationPendingPath), nil
	}
	if currentPath == VerificationPendingPath {
		return redirect(authz.DashboardPath(authz.RoleProvider)), nil
	}
	return Decide(g.holder.Get(), guard, currentPath), nil
}

// Reverify runs the live check outside of navigation, as when the server
// pushes a verification change, and updates the cached Principal.
func (g *Gate) Reverify(ctx context.Context) (bool, error) {
	p := g.holder.Get()
	if p == nil || p.Role != authz.RoleProvider {
		return false, ErrNotProvider
	}
	verified, err := g.checker.ProviderVerified(ctx)
	if err != nil {
		return false, fmt.Errorf("[ProviderVerified]: %w", err)
	}
	if verified != p.IsProviderVerified() {
		g.logger.Info("Provider verification changed", "user", p.ID, "verified", verified)
		g.holder.setProviderVerified(p.ID, verified)
	}
	return verified, nil
}

func (g *Gate) needsLiveCheck(p *authz.Principal, guard Guard, currentPath string, d Decision) bool {
	if p == nil || p.Role != authz.RoleProvider || !p.OnboardingCompleted {
		return false
	}
	if currentPath == VerificationPendingPath {
		return true
	}
	if !guard.providerArea() {
		return false
	}
	// Only the verification step of Decide can be overturned.
	return d.Allow || d.RedirectTo == VerificationPendingPath
}
