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
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/directory"
	onusjson "github.com/rowan-franciscus/onus-health-application-sub001/json"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"github.com/rowan-franciscus/onus-health-application-sub001/store/authlog"
	"log/slog"
	"net/http"
	"strings"
)

type PostLogin struct {
	userStore *directory.UserStore
	issuer    *authz.Issuer
	idle      *IdleTracker
	authLog   *authlog.Logger
	// requireRole restricts the endpoint to one role, as for the admin sign-in.
	requireRole authz.Role
}

func (action PostLogin) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	resp, errHTTP := action.postLogin(req)
	if errHTTP != nil {
		errHTTP.From("[postLogin]").WriteResponse(w)
		return
	}
	mustWriteJSON(w, req, resp)
}

func (action PostLogin) postLogin(req *http.Request) (onusjson.LoginResponse, *herr.HTTPError) {
	var empty onusjson.LoginResponse
	vals, errHTTP := readBodyAs[onusjson.LoginRequest](req)
	if errHTTP != nil {
		return empty, errHTTP.From("[readBodyAs]")
	}
	email := strings.TrimSpace(vals.Email)
	if email == "" {
		return empty, herr.BadRequest("Email is required", nil).WithField("email").SetExpectedError()
	}
	if vals.Password == "" {
		return empty, herr.BadRequest("Password is required", nil).WithField("password").SetExpectedError()
	}

	p, err := action.userStore.Authenticate(req.Context(), email, vals.Password)
	if errors.Is(err, directory.ErrBadCredentials) {
		action.authLog.Log(req.Context(), store.AuthEvent{Kind: authlog.KindLoginFailed, Detail: email})
		return empty, herr.Unauthorized("Invalid email or password", err).WithField("password").SetExpectedError()
	}
	if err != nil {
		return empty, herr.InternalServerError("Failed to authenticate", err).From("[Authenticate]")
	}
	if action.requireRole != "" && p.Role != action.requireRole {
		action.authLog.Log(req.Context(), store.AuthEvent{
			Kind:   authlog.KindLoginFailed,
			UserID: p.ID,
			Detail: fmt.Sprintf("%v attempted %v sign-in", p.Role, action.requireRole),
		})
		return empty, herr.Forbidden("This sign-in is only for administrators", nil).SetExpectedError()
	}

	pair, err := action.issuer.IssuePair(req.Context(), p)
	if err != nil {
		return empty, herr.InternalServerError("Failed to create tokens", err).From("[IssuePair]")
	}
	if action.idle != nil {
		action.idle.Begin(pair.SessionID)
	}
	slog.Info("Successful login", "userID", p.ID, "role", p.Role)
	action.authLog.Log(req.Context(), store.AuthEvent{
		Kind:      authlog.KindLogin,
		UserID:    p.ID,
		SessionID: pair.SessionID,
	})

	return onusjson.LoginResponse{
		User:          p,
		Tokens:        pair,
		ExpiresUnixMs: suggestedRefreshTime(pair),
	}, nil
}

func suggestedRefreshTime(pair authz.TokenPair) int64 {
	return pair.AccessExpiresAt.Add(authz.SuggestedEarlyAccessTokenRefresh).UnixMilli()
}

type PostRefreshToken struct {
	issuer  *authz.Issuer
	idle    *IdleTracker
	authLog *authlog.Logger
}

func (action PostRefreshToken) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	resp, errHTTP := action.postRefreshToken(req)
	if errHTTP != nil {
		errHTTP.From("[postRefreshToken]").WriteResponse(w)
		return
	}
	mustWriteJSON(w, req, resp)
}

func (action PostRefreshToken) postRefreshToken(req *http.Request) (onusjson.RefreshResponse, *herr.HTTPError) {
	var empty onusjson.RefreshResponse
	vals, errHTTP := readBodyAs[onusjson.RefreshRequest](req)
	if errHTTP != nil {
		return empty, errHTTP.From("[readBodyAs]")
	}
	if vals.RefreshToken == "" {
		return empty, herr.Unauthorized("No refresh token provided", nil).SetExpectedError()
	}

	// A session that went idle can't be revived by refreshing. The token is
	// checked here without spending it, so the ledger is left alone.
	claims, err := action.issuer.JWTer().AuthenticateRefreshToken(vals.RefreshToken)
	if err == nil && action.idle != nil {
		if err = action.idle.Check(claims.SessionID); err != nil {
			action.authLog.Log(req.Context(), store.AuthEvent{
				Kind:      authlog.KindSessionTimeout,
				UserID:    claims.UserID(),
				SessionID: claims.SessionID,
			})
			return empty, herr.SessionTimeout(err)
		}
	}

	pair, p, err := action.issuer.Refresh(req.Context(), vals.RefreshToken)
	if errors.Is(err, authz.ErrRefreshRejected) {
		ev := store.AuthEvent{Kind: authlog.KindRefreshFailed, Detail: err.Error()}
		if claims != nil {
			ev.UserID, ev.SessionID = claims.UserID(), claims.SessionID
		}
		action.authLog.Log(req.Context(), ev)
		return empty, herr.Unauthorized("Failed to authenticate refresh token", err).SetExpectedError()
	}
	if err != nil {
		return empty, herr.InternalServerError("Failed to refresh tokens", err).From("[Refresh]")
	}
	slog.Debug("Refreshed token pair", "userID", p.ID)
	action.authLog.Log(req.Context(), store.AuthEvent{
		Kind:      authlog.KindRefresh,
		UserID:    p.ID,
		SessionID: pair.SessionID,
	})
	return onusjson.RefreshResponse{
		Tokens:        pair,
		ExpiresUnixMs: suggestedRefreshTime(pair),
	}, nil
}

type PostLogout struct {
	issuer  *authz.Issuer
	idle    *IdleTracker
	authLog *authlog.Logger
}

func (action PostLogout) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	errHTTP := action.postLogout(req)
	if errHTTP != nil {
		errHTTP.From("[postLogout]").WriteResponse(w)
		return
	}
	herr.WriteNoContentResponse(w)
}

// postLogout spends the refresh token and ends the idle session. Neither is
// required, so a client can always log out.
func (action PostLogout) postLogout(req *http.Request) *herr.HTTPError {
	vals, errHTTP := readOptionalBodyAs[onusjson.LogoutRequest](req)
	if errHTTP != nil {
		return errHTTP.From("[readOptionalBodyAs]")
	}
	if vals.RefreshToken != "" {
		if err := action.issuer.Revoke(req.Context(), vals.RefreshToken); err != nil {
			return herr.InternalServerError("Failed to revoke refresh token", err).From("[Revoke]")
		}
	}
	ev := store.AuthEvent{Kind: authlog.KindLogout}
	jwtCtx, _ := req.Context().Value(JWTContextKey).(JWTContext)
	if jwtCtx.Claims != nil {
		ev.UserID, ev.SessionID = jwtCtx.Claims.UserID(), jwtCtx.Claims.SessionID
		if action.idle != nil {
			action.idle.End(jwtCtx.Claims.SessionID)
		}
	}
	action.authLog.Log(req.Context(), ev)
	return nil
}

type GetSessionStatus struct {
	idle *IdleTracker
}

func (action GetSessionStatus) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// RequireAuthN has already counted this request as activity.
	resp := onusjson.SessionStatus{Active: true}
	if action.idle != nil {
		resp.IdleTimeoutMs = action.idle.Timeout().Milliseconds()
	}
	mustWriteJSON(w, req, resp)
}
