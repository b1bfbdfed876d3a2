// Copyright 2025 AxonFlow
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

package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable machine-readable code sent to clients.
type ErrorCode string

const (
	CodeNotFoundAgent         ErrorCode = "NOT_FOUND_AGENT"
	CodeNotFoundFile          ErrorCode = "NOT_FOUND_FILE"
	CodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	CodeProviderNotConfigured ErrorCode = "PROVIDER_NOT_CONFIGURED"
	CodeValidation            ErrorCode = "VALIDATION_ERROR"
	CodeUpstream              ErrorCode = "UPSTREAM_ERROR"
	CodeCircuitOpen           ErrorCode = "CIRCUIT_OPEN"
	CodeTimeout               ErrorCode = "TIMEOUT"
	CodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Sentinel errors, one per error kind. Match with errors.Is.
var (
	ErrNotFoundAgent         = errors.New("agent not found")
	ErrNotFoundFile          = errors.New("file not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrProviderNotConfigured = errors.New("Auth provider not configured")
	ErrValidation            = errors.New("validation failed")
	ErrUpstream              = errors.New("upstream error")
	ErrCircuitOpen           = errors.New("service unavailable: circuit open")
	ErrTimeout               = errors.New("request timed out")
)

var codeBySentinel = map[error]ErrorCode{
	ErrNotFoundAgent:         CodeNotFoundAgent,
	ErrNotFoundFile:          CodeNotFoundFile,
	ErrUnauthorized:          CodeUnauthorized,
	ErrProviderNotConfigured: CodeProviderNotConfigured,
	ErrValidation:            CodeValidation,
	ErrUpstream:              CodeUpstream,
	ErrCircuitOpen:           CodeCircuitOpen,
	ErrTimeout:               CodeTimeout,
}

var statusBySentinel = map[error]int{
	ErrNotFoundAgent:         http.StatusNotFound,
	ErrNotFoundFile:          http.StatusNotFound,
	ErrUnauthorized:          http.StatusUnauthorized,
	ErrProviderNotConfigured: http.StatusUnauthorized,
	ErrValidation:            http.StatusBadRequest,
	ErrUpstream:              http.StatusInternalServerError,
	ErrCircuitOpen:           http.StatusServiceUnavailable,
	ErrTimeout:               http.StatusGatewayTimeout,
}

// GatewayError carries an error kind plus request-level detail.
type GatewayError struct {
	Op      string // operation, e.g. "resolve.agent_data"
	Kind    error  // one of the sentinels above
	Message string // human-readable message returned to the caller
	Status  int    // overrides the kind's default status when non-zero
	Err     error  // underlying cause, never sent on production domains
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Code returns the stable machine-readable code.
func (e *GatewayError) Code() ErrorCode {
	if code, ok := codeBySentinel[e.Kind]; ok {
		return code
	}
	return CodeInternal
}

// HTTPStatus returns the response status for this error.
func (e *GatewayError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if status, ok := statusBySentinel[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message safe to show on any domain.
func (e *GatewayError) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// NewError builds a GatewayError.
func NewError(op string, kind error, message string, cause error) *GatewayError {
	return &GatewayError{Op: op, Kind: kind, Message: message, Err: cause}
}

// AsGatewayError converts any error into a GatewayError. Unknown errors become
// internal errors; context deadline errors become timeouts.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	for sentinel := range codeBySentinel {
		if errors.Is(err, sentinel) {
			return &GatewayError{Op: "gateway", Kind: sentinel, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Op: "gateway", Kind: ErrTimeout, Err: err}
	}
	return &GatewayError{Op: "gateway", Kind: errInternal, Message: "internal error", Err: err}
}

var errInternal = errors.New("internal error")

// ErrorCodeOf returns the code for any error.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsGatewayError(err).Code()
}
