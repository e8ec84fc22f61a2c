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

package herr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ApplicationProblemMediaType is described by RFC 9457.
// https://www.rfc-editor.org/rfc/rfc9457.html
const ApplicationProblemMediaType = "application/problem+json"

// Machine-readable problem codes. Clients branch on these rather than on Detail.
const (
	// CodeSessionTimeout means the server's idle budget for the session ran out.
	// Clients must not try to refresh their way past it.
	CodeSessionTimeout = "SESSION_TIMEOUT"
	// CodeProviderNotVerified means the caller is a provider an admin hasn't approved yet.
	CodeProviderNotVerified = "PROVIDER_NOT_VERIFIED"
)

// Problem is the JSON body of every error response.
type Problem struct {
	Status    int       `json:"status"`
	Detail    string    `json:"detail"`
	Code      string    `json:"code,omitempty"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HTTPError struct {
	Code            int
	ResponseMessage string
	InternalErr     error
	// ProblemCode is sent to the client as Problem.Code.
	ProblemCode string
	// Field names the request field at fault, for inline form errors.
	Field string
	// ExpectedError indicates that this error should happen in normal operation.
	// It's just used to tell the server not to bother logging this error.
	ExpectedError bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(
		"HTTP %v: ResponseMessage:'%v', InternalError:'%v'",
		e.Code, e.ResponseMessage, e.InternalErr,
	)
}

func New(code int, message string, internalErr error) *HTTPError {
	if internalErr == nil {
		internalErr = errors.New(message)
	}
	return &HTTPError{
		Code:            code,
		ResponseMessage: message,
		InternalErr:     internalErr,
	}
}

// TooManyRequests returns an http.StatusTooManyRequests HTTPError.
func TooManyRequests(userMessage string, err error) *HTTPError {
	return New(http.StatusTooManyRequests, userMessage, err)
}

// InternalServerError returns an http.StatusInternalServerError HTTPError.
func InternalServerError(userMessage string, err error) *HTTPError {
	return New(http.StatusInternalServerError, userMessage, err)
}

// BadRequest returns an http.StatusBadRequest HTTPError.
func BadRequest(userMessage string, err error) *HTTPError {
	return New(http.StatusBadRequest, userMessage, err)
}

func RequestEntityTooLarge(userMessage string, err error) *HTTPError {
	return New(http.StatusRequestEntityTooLarge, userMessage, err)
}

// Unauthorized returns an http.StatusUnauthorized HTTPError.
func Unauthorized(userMessage string, err error) *HTTPError {
	return New(http.StatusUnauthorized, userMessage, err)
}

// Forbidden returns an http.StatusForbidden HTTPError.
func Forbidden(userMessage string, err error) *HTTPError {
	return New(http.StatusForbidden, userMessage, err)
}

// NotFound returns an HTTP Not Found HTTPError.
func NotFound(userMessage string, err error) *HTTPError {
	return New(http.StatusNotFound, userMessage, err)
}

// From wraps the InternalErr using fmt.Sprintf. This should be used to specify
// the name of a function that returned an error. See httperror_test.go for
// examples of wrapping.
func (e *HTTPError) From(source string) *HTTPError {
	return &HTTPError{
		InternalErr:     fmt.Errorf("%v: %w", source, e.InternalErr),
		Code:            e.Code,
		ResponseMessage: e.ResponseMessage,
		ProblemCode:     e.ProblemCode,
		Field:           e.Field,
		ExpectedError:   e.ExpectedError,
	}
}

// WithProblemCode sets the machine-readable code sent alongside the message.
func (e *HTTPError) WithProblemCode(code string) *HTTPError {
	e.ProblemCode = code
	return e
}

func (e *HTTPError) WithField(field string) *HTTPError {
	e.Field = field
	return e
}

// SessionTimeout returns the 401 that tells a client its session went idle.
func SessionTimeout(err error) *HTTPError {
	return Unauthorized("Session timed out", err).WithProblemCode(CodeSessionTimeout).SetExpectedError()
}

// ProviderNotVerified returns the 403 for providers awaiting admin approval.
func ProviderNotVerified(err error) *HTTPError {
	return Forbidden("Provider account is pending verification", err).
		WithProblemCode(CodeProviderNotVerified).SetExpectedError()
}

func (e *HTTPError) SetExpectedError() *HTTPError {
	e.ExpectedError = true
	return e
}

func (e *HTTPError) Unwrap() error {
	return e.InternalErr
}

func (e *HTTPError) WriteResponse(w http.ResponseWriter) {
	if !e.ExpectedError {
		slog.Error("Writing error HTTP response",
			"code", e.Code,
			"problemCode", e.ProblemCode,
			"message", e.ResponseMessage,
			"internalError", e.InternalErr,
		)
	}

	p := Problem{
		Status:    e.Code,
		Detail:    e.ResponseMessage,
		Code:      e.ProblemCode,
		Field:     e.Field,
		Timestamp: time.Now(),
	}

	// Write headers, write status, write body
	w.Header().Set("Content-Type", ApplicationProblemMediaType)
	w.WriteHeader(e.Code)

	marshalled, err := json.Marshal(p)
	if err != nil {
		slog.Error("Failed to marshal problem response", "err", err)
		marshalled = []byte(`{"detail":"Failed to marshal problem response"}`)
	}
	_, _ = w.Write(marshalled)
}

// AsHTTPError converts an error into an HTTPError. The intended use is for
// when an error is known to actually be an HTTPError, but when it's declared
// as a different type. This function then asserts it's actually an HTTPError.
func AsHTTPError(err error) *HTTPError {
	errHTTP := &HTTPError{}
	if errors.As(err, &errHTTP) {
		return errHTTP
	}
	return InternalServerError(
		"Unknown server error",
		err,
	)
}
