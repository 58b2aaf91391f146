package flow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned by Authorize when the client id or
// client secret is empty
var ErrMissingCredentials = errors.New("client id and client secret are required")

// ErrMissingFlowState is returned by ExchangeCodeForToken when the
// client id, client secret or authorization code is missing
var ErrMissingFlowState = errors.New("client id, client secret and authorization code are required")

// ErrRequestFailed is matched (with errors.Is) by every network or
// response failure of the token and invoice calls
var ErrRequestFailed = errors.New("request failed")

// ErrBusy is returned when a network call is already in flight
var ErrBusy = errors.New("a request is already in progress")

// ResponseError reports an unusable response from the remote service:
// a non-2xx status, a body that is not json, or an oauth2 error body
type ResponseError struct {
	StatusCode  int
	Body        string
	Code        string
	Description string
}

func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status: %d error: %s %s", e.StatusCode, e.Code, e.Description)
	}
	if e.Description != "" {
		return fmt.Sprintf("status: %d message: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("status: %d message: %s", e.StatusCode, e.Body)
}

// Is makes every ResponseError match ErrRequestFailed
func (e *ResponseError) Is(target error) bool {
	return target == ErrRequestFailed
}

// newResponseError builds a ResponseError, picking up the rfc6749
// error fields when the body carries them
func newResponseError(status int, body []byte) *ResponseError {
	e := &ResponseError{StatusCode: status, Body: string(body)}
	var oe struct {
		Code        string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &oe) == nil {
		e.Code = oe.Code
		e.Description = oe.Description
	}
	return e
}
