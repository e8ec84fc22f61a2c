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
)

// GetProviderStatus is the live verification check. The providerVerified
// claim in an access token can be stale, so this always asks the directory.
type GetProviderStatus struct {
	userStore *directory.UserStore
}

func (action GetProviderStatus) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	resp, errHTTP := action.getProviderStatus(req)
	if errHTTP != nil {
		errHTTP.From("[getProviderStatus]").WriteResponse(w)
		return
	}
	mustWriteJSON(w, req, resp)
}

func (action GetProviderStatus) getProviderStatus(req *http.Request) (onusjson.ProviderStatus, *herr.HTTPError) {
	var empty onusjson.ProviderStatus
	jwtCtx, errHTTP := getJwtCtx(req)
	if errHTTP != nil {
		return empty, errHTTP.From("[getJwtCtx]")
	}
	verified, err := action.userStore.ProviderVerified(req.Context(), jwtCtx.Claims.UserID())
	if errors.Is(err, authz.ErrAccountNotFound) {
		return empty, herr.Unauthorized("Account no longer exists", err).SetExpectedError()
	}
	if errors.Is(err, directory.ErrNotProvider) {
		return empty, herr.Forbidden("The requestor is not a provider", err)
	}
	if err != nil {
		return empty, herr.InternalServerError("Failed to fetch provider status", err).From("[ProviderVerified]")
	}
	if !verified {
		return empty, herr.ProviderNotVerified(nil)
	}
	return onusjson.ProviderStatus{IsVerified: true}, nil
}

type PostProviderVerification struct {
	userStore *directory.UserStore
	es        *EventSourcerer
	authLog   *authlog.Logger
}

func (action PostProviderVerification) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	errHTTP := action.postProviderVerification(req)
	if errHTTP != nil {
		errHTTP.From("[postProviderVerification]").WriteResponse(w)
		return
	}
	herr.WriteNoContentResponse(w)
}

func (action PostProviderVerification) postProviderVerification(req *http.Request) *herr.HTTPError {
	jwtCtx, errHTTP := getJwtCtx(req)
	if errHTTP != nil {
		return errHTTP.From("[getJwtCtx]")
	}
	userID := req.PathValue("userID")
	if userID == "" {
		return herr.BadRequest("No userID was provided", nil)
	}
	vals, errHTTP := readBodyAs[onusjson.ProviderVerification](req)
	if errHTTP != nil {
		return errHTTP.From("[readBodyAs]")
	}
	err := action.userStore.SetProviderVerified(req.Context(), userID, vals.Verified)
	if errors.Is(err, authz.ErrAccountNotFound) {
		return herr.NotFound("No such user", err)
	}
	if errors.Is(err, directory.ErrNotProvider) {
		return herr.BadRequest("Only providers can be verified", err)
	}
	if err != nil {
		return herr.InternalServerError("Failed to set provider verification", err).From("[SetProviderVerified]")
	}
	slog.Info("Provider verification changed",
		"provider", userID,
		"verified", vals.Verified,
		"admin", jwtCtx.Claims.UserID(),
	)
	action.authLog.Log(req.Context(), store.AuthEvent{
		Kind:   authlog.KindVerification,
		UserID: userID,
		Detail: fmt.Sprintf("verified=%v by %v", vals.Verified, jwtCtx.Claims.UserID()),
	})
	if action.es != nil {
		action.es.notifyProviderVerified(userID, vals.Verified)
	}
	return nil
}

// GetEventSource streams the requestor's own events.
type GetEventSource struct {
	es *EventSourcerer
}

func (action GetEventSource) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	jwtCtx, errHTTP := getJwtCtx(req)
	if errHTTP != nil {
		errHTTP.From("[getJwtCtx]").WriteResponse(w)
		return
	}
	action.es.Handler(jwtCtx.Claims.UserID()).ServeHTTP(w, req)
}
