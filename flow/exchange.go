package flow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

// tokenResults is the body of the token endpoint response
type tokenResults struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// encodeIDSecret encodes the client id and secret into a "Basic"
// authorization header value
func encodeIDSecret(c Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.ClientID+":"+c.ClientSecret))
}

// ExchangeCodeForToken exchanges the held authorization code for an
// access and refresh token. On success the code is released; on failure
// the tokens are left as they were.
func (f *Flow) ExchangeCodeForToken(ctx context.Context) error {
	f.locker.Lock()
	if f.busy {
		f.locker.Unlock()
		return ErrBusy
	}
	if !f.creds.complete() || f.code == "" {
		f.setMessage(false, msgMissingFlowState)
		f.locker.Unlock()
		return ErrMissingFlowState
	}
	creds, code, endpoint, id := f.creds, f.code, f.endpoint, f.id
	f.busy = true
	f.locker.Unlock()

	tokens, err := f.requestToken(ctx, endpoint.tokenURL(), creds, code)

	f.locker.Lock()
	defer f.locker.Unlock()
	f.busy = false
	if err != nil {
		log.Printf("flow %s: get token error: %s", id, err)
		f.setMessage(false, msgTokenFailed)
		return err
	}
	f.tokens = tokens
	f.code = ""
	f.setMessage(true, msgTokenOK)
	log.Printf("flow %s: token retrieved", id)
	return nil
}

// requestToken posts the authorization code grant to tokenURL
func (f *Flow) requestToken(ctx context.Context, tokenURL string, creds Credentials, code string) (TokenPair, error) {
	form := url.Values{}
	form.Add("grant_type", "authorization_code")
	form.Add("code", code)
	form.Add("redirect_uri", f.redirectURL)
	form.Add("scope", scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Add("Authorization", encodeIDSecret(creds))
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Accept", "application/json")

	var results tokenResults
	status, body, err := f.do(req, &results)
	if err != nil {
		return TokenPair{}, err
	}
	if results.Error != "" {
		return TokenPair{}, &ResponseError{
			StatusCode:  status,
			Body:        string(body),
			Code:        results.Error,
			Description: results.ErrorDescription,
		}
	}
	if results.AccessToken == "" {
		return TokenPair{}, &ResponseError{
			StatusCode:  status,
			Body:        string(body),
			Description: "empty response received from server",
		}
	}
	return TokenPair{AccessToken: results.AccessToken, RefreshToken: results.RefreshToken}, nil
}

// do sends req and decodes a 2xx json response into out. The status
// and raw body are returned for building errors from decoded content.
func (f *Flow) do(req *http.Request, out any) (int, []byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: could not read body: %w", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, newResponseError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, body, &ResponseError{
			StatusCode:  resp.StatusCode,
			Body:        string(body),
			Description: fmt.Sprintf("json decoding error: %s", err),
		}
	}
	return resp.StatusCode, body, nil
}
