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
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/conf"
	"github.com/rowan-franciscus/onus-health-application-sub001/directory"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authz"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/herr"
	"github.com/rowan-franciscus/onus-health-application-sub001/store"
	"github.com/rowan-franciscus/onus-health-application-sub001/store/authlog"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"sync"
	"time"
)

func AddToMux(
	mux *http.ServeMux,
	es *EventSourcerer,
	cfg *conf.OnusConfig,
	issuer *authz.Issuer,
	userStore *directory.UserStore,
	idle *IdleTracker,
	authLog *authlog.Logger,
) *http.ServeMux {
	if mux == nil {
		mux = http.NewServeMux()
	}

	jwter := issuer.JWTer()

	mux.Handle("POST /api/auth/login",
		Adapt(
			PostLogin{userStore, issuer, idle, authLog, ""},
			RecoverFromPanic(),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
			// This endpoint does not require authentication, nor
			// does it even consider the request's Authorization header,
			// because the point of this is to make a new token pair.
		),
	)

	mux.Handle("POST /api/auth/admin/login",
		Adapt(
			PostLogin{userStore, issuer, idle, authLog, authz.RoleAdmin},
			RecoverFromPanic(),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
		),
	)

	mux.Handle("POST /api/auth/refresh-token",
		Adapt(
			PostRefreshToken{issuer, idle, authLog},
			RecoverFromPanic(),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
			// The refresh token is in the body. An access token, if sent,
			// is most likely expired, which is why the client is here.
		),
	)

	mux.Handle("POST /api/auth/logout",
		Adapt(
			PostLogout{issuer, idle, authLog},
			RecoverFromPanic(),
			// Logging out has to work with an expired or timed-out token.
			OptionalAuthN(jwter),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
		),
	)

	mux.Handle("GET /api/auth/session-status",
		Adapt(
			GetSessionStatus{idle},
			RecoverFromPanic(),
			RequireAuthN(jwter, idle, authLog),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
		),
	)

	mux.Handle("GET /api/provider/status",
		Adapt(
			GetProviderStatus{userStore},
			RecoverFromPanic(),
			RequireAuthN(jwter, idle, authLog),
			RequireRole(authz.RoleProvider),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
		),
	)

	mux.Handle("POST /api/admin/providers/{userID}/verification",
		Adapt(
			PostProviderVerification{userStore, es, authLog},
			RecoverFromPanic(),
			RequireAuthN(jwter, idle, authLog),
			RequireRole(authz.RoleAdmin),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
		),
	)

	mux.Handle("GET /api/events",
		Adapt(
			GetEventSource{es},
			RecoverFromPanic(),
			RequireAuthN(jwter, idle, authLog),
			LogRequest(),
			LimitRequestBytes(cfg.Core.MaxRequestBytes),
		),
	)

	mux.HandleFunc("GET /api/ping",
		func(w http.ResponseWriter, req *http.Request) {
			herr.WriteOKResponse(w, "ack")
		},
	)

	mux.Handle("GET /api/debug/buildinfo",
		Adapt(
			http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Set("Cache-Control", "no-cache")
				bi := buildInfo()
				herr.WriteOKResponse(w, bi.String())
			}),
			RecoverFromPanic(),
			RequireAuthN(jwter, idle, authLog),
			RequireRole(authz.RoleAdmin),
			LogRequest(),
		),
	)

	return mux
}

var buildInfo = sync.OnceValue[debug.BuildInfo](func() debug.BuildInfo {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		return *bi
	}
	slog.Info("Build info was unavailable, so an empty placeholder will be used instead")
	return debug.BuildInfo{}
})

type Adapter func(http.Handler) http.Handler

// responseWriter is a wrapper around http.ResponseWriter that lets us
// capture details about the response.
type responseWriter struct {
	http.ResponseWriter
	http.Flusher
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

func LimitRequestBytes(maxRequestBytes int64) Adapter {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, maxRequestBytes)
	}
}

func LogRequest() Adapter {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			writ := &responseWriter{w, w.(http.Flusher), http.StatusOK}

			next.ServeHTTP(writ, r)

			user := "(unauthenticated)"
			jwtCtx, _ := r.Context().Value(JWTContextKey).(JWTContext)
			if jwtCtx.Claims != nil {
				user = jwtCtx.Claims.UserID()
			}

			durationMS := float64(time.Since(start).Microseconds()) / 1000.0
			slog.Debug(fmt.Sprintf("Served request for: %v %v ", r.Method, r.URL.Path),
				"duration", fmt.Sprintf("%.3fms", durationMS),
				"method", r.Method,
				"user", user,
				"code", writ.code,
				"remote-addr", r.RemoteAddr,
				"build", buildInfo().Main.Version,
			)
		})
	}
}

func RecoverFromPanic() Adapter {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					slog.Error("Recovered from panic", "err", err)
					debug.PrintStack()
					http.Error(w, "The server malfunctioned", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type ContextKey string

const JWTContextKey ContextKey = "JWTContext"

type JWTContext struct {
	Claims *authz.AccessClaims
	Error  error
}

func OptionalAuthN(j authz.JWTer) Adapter {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := j.AuthenticateAccessToken(r.Header.Get("Authorization"))
			ctx := context.WithValue(r.Context(), JWTContextKey, JWTContext{
				Claims: claims,
				Error:  err,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthN rejects requests without a valid access token. An invalid or
// expired token gets a plain 401, which clients answer by refreshing. A valid
// token for a session that went idle gets a 401 with SESSION_TIMEOUT, which
// clients must not try to refresh past.
func RequireAuthN(j authz.JWTer, idle *IdleTracker, authLog *authlog.Logger) Adapter {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := j.AuthenticateAccessToken(r.Header.Get("Authorization"))
			if err != nil || claims == nil {
				herr.Unauthorized("Invalid Authorization token", err).
					From("[AuthenticateAccessToken]").SetExpectedError().WriteResponse(w)
				return
			}
			if claims.SessionID == "" {
				herr.Unauthorized("Invalid Authorization token", errors.New("no session id in JWT")).WriteResponse(w)
				return
			}
			if idle != nil {
				if err = idle.Touch(claims.SessionID); err != nil {
					authLog.Log(r.Context(), store.AuthEvent{
						Kind:      authlog.KindSessionTimeout,
						UserID:    claims.UserID(),
						SessionID: claims.SessionID,
					})
					herr.SessionTimeout(err).WriteResponse(w)
					return
				}
			}
			jwtCtx := context.WithValue(r.Context(), JWTContextKey, JWTContext{
				Claims: claims,
				Error:  err,
			})
			next.ServeHTTP(w, r.WithContext(jwtCtx))
		})
	}
}

// RequireRole must come after RequireAuthN.
func RequireRole(roles ...authz.Role) Adapter {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jwtCtx, errHTTP := getJwtCtx(r)
			if errHTTP != nil {
				errHTTP.From("[getJwtCtx]").WriteResponse(w)
				return
			}
			if !slices.Contains(roles, jwtCtx.Claims.Role) {
				herr.Forbidden("The requestor does not have the required role",
					fmt.Errorf("role %v is not one of %v", jwtCtx.Claims.Role, roles)).WriteResponse(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Adapt(handler http.Handler, adapters ...Adapter) http.Handler {
	for i := range adapters {
		adapter := adapters[len(adapters)-1-i] // range in reverse
		handler = adapter(handler)
	}
	return handler
}
