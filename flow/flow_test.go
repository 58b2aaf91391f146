package flow

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResponse returns a Doer answering every request with status and
// body, recording the requests made
func stubResponse(status int, body string, requests *[]*http.Request) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		if requests != nil {
			*requests = append(*requests, req)
		}
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	})
}

// stubRoutes answers by request path
func stubRoutes(routes map[string]Doer) Doer {
	return DoerFunc(func(req *http.Request) (*http.Response, error) {
		for suffix, d := range routes {
			if strings.HasSuffix(req.URL.Path, suffix) {
				return d.Do(req)
			}
		}
		return nil, errors.New("no route for " + req.URL.Path)
	})
}

var networkDown = DoerFunc(func(req *http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
})

var sampleInvoice = BuilderFunc(func() (any, error) {
	return map[string]any{"Invoice_ID": "1"}, nil
})

func newFlow(t *testing.T, creds Credentials, client Doer) *Flow {
	t.Helper()
	f, err := New(Config{
		Credentials: creds,
		Endpoint:    Sandbox,
		Client:      client,
		Invoice:     sampleInvoice,
	})
	require.NoError(t, err)
	return f
}

func capture(t *testing.T, f *Flow, rawURL string) bool {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	_, ok := f.CaptureCode(u)
	return ok
}

func TestNewErr(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  string
	}{
		{"bad_redirect", Config{RedirectURL: "not a url", Invoice: sampleInvoice}, "redirect url invalid"},
		{"bad_endpoint", Config{Endpoint: "https://example.com/", Invoice: sampleInvoice}, "unknown endpoint"},
		{"no_invoice", Config{}, "invoice builder cannot be nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}

	f, err := New(Config{Invoice: sampleInvoice})
	require.NoError(t, err)
	assert.Equal(t, Sandbox, f.Snapshot().Endpoint)
	assert.Equal(t, Unauthenticated, f.Snapshot().Stage)
}

func TestConfigure(t *testing.T) {
	f := newFlow(t, Credentials{}, nil)

	require.NoError(t, f.Configure(FieldClientID, "abc"))
	require.NoError(t, f.Configure(FieldClientSecret, "xyz"))
	require.NoError(t, f.Configure(FieldEndpoint, "production"))
	s := f.Snapshot()
	assert.Equal(t, Credentials{ClientID: "abc", ClientSecret: "xyz"}, s.Credentials)
	assert.Equal(t, Production, s.Endpoint)

	require.NoError(t, f.Configure(FieldEndpoint, string(Sandbox)))
	assert.Equal(t, Sandbox, f.Snapshot().Endpoint)

	// empty values are accepted
	require.NoError(t, f.Configure(FieldClientID, ""))
	assert.Equal(t, "", f.Snapshot().Credentials.ClientID)

	assert.ErrorIs(t, f.Configure(FieldEndpoint, "staging"), ErrUnknownEndpoint)
	assert.ErrorIs(t, f.Configure(Field("tenant"), "x"), ErrUnknownField)
	assert.Equal(t, Sandbox, f.Snapshot().Endpoint)
}

func TestAuthorizeMissingCredentials(t *testing.T) {
	for _, creds := range []Credentials{
		{},
		{ClientID: "abc"},
		{ClientSecret: "xyz"},
	} {
		f := newFlow(t, creds, nil)
		u, err := f.Authorize()
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Empty(t, u)
		s := f.Snapshot()
		assert.False(t, s.Success)
		assert.Equal(t, msgMissingCredentials, s.Message)
	}
}

func TestAuthorizeURL(t *testing.T) {
	f := newFlow(t, Credentials{ClientID: "abc", ClientSecret: "xyz"}, nil)

	authURL, err := f.Authorize()
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "openapi.taxes.gov.il", u.Host)
	assert.Equal(t, "/shaam/tsandbox/longtimetoken/oauth2/authorize", u.Path)
	assert.Equal(t, url.Values{
		"response_type": {"code"},
		"client_id":     {"abc"},
		"scope":         {"scope"},
	}, u.Query())

	require.NoError(t, f.Configure(FieldEndpoint, "production"))
	authURL, err = f.Authorize()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, string(Production)+"longtimetoken/oauth2/authorize?"))
}

func TestAuthorizeRestarts(t *testing.T) {
	f := newFlow(t, Credentials{ClientID: "abc", ClientSecret: "xyz"}, stubRoutes(map[string]Doer{
		"/token":    stubResponse(200, `{"access_token":"AT1","refresh_token":"RT1"}`, nil),
		"/Approval": stubResponse(200, `{"Confirmation_Number":"CN-001"}`, nil),
	}))
	require.True(t, capture(t, f, "/?code=first"))
	require.NoError(t, f.ExchangeCodeForToken(context.Background()))
	require.NoError(t, f.SubmitInvoice(context.Background()))
	before := f.Snapshot()
	require.Equal(t, InvoiceSubmitted, before.Stage)

	_, err := f.Authorize()
	require.NoError(t, err)
	after := f.Snapshot()
	assert.Equal(t, Unauthenticated, after.Stage)
	assert.Empty(t, after.Tokens)
	assert.Empty(t, after.ConfirmationNumber)
	assert.Empty(t, after.Message)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, before.Credentials, after.Credentials)

	// a new code is accepted after the restart
	assert.True(t, capture(t, f, "/?code=second"))
	assert.Equal(t, "second", f.Snapshot().Code)
}

func TestCaptureCode(t *testing.T) {
	f := newFlow(t, Credentials{}, nil)

	u, err := url.Parse("/?code=XYZ123&lang=he")
	require.NoError(t, err)
	clean, ok := f.CaptureCode(u)
	assert.True(t, ok)
	assert.Equal(t, "lang=he", clean.RawQuery)
	assert.Equal(t, "XYZ123", f.Snapshot().Code)
	assert.Equal(t, CodeHeld, f.Snapshot().Stage)

	// a second code is ignored while one is held
	assert.False(t, capture(t, f, "/?code=OTHER"))
	assert.Equal(t, "XYZ123", f.Snapshot().Code)

	// nothing to capture
	u, err = url.Parse("/")
	require.NoError(t, err)
	clean, ok = f.CaptureCode(u)
	assert.False(t, ok)
	assert.Equal(t, "", clean.RawQuery)
}

func TestCaptureCodeAuthorizationError(t *testing.T) {
	f := newFlow(t, Credentials{}, nil)

	u, err := url.Parse("/?error=access_denied&error_description=denied")
	require.NoError(t, err)
	clean, ok := f.CaptureCode(u)
	assert.False(t, ok)
	assert.Equal(t, "", clean.RawQuery)
	s := f.Snapshot()
	assert.Empty(t, s.Code)
	assert.False(t, s.Success)
	assert.Contains(t, s.Message, "access_denied")
}

func TestExchangeCodeForToken(t *testing.T) {
	var requests []*http.Request
	f := newFlow(t, Credentials{ClientID: "abc", ClientSecret: "xyz"},
		stubResponse(200, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600}`, &requests))
	require.True(t, capture(t, f, "/?code=XYZ123"))

	require.NoError(t, f.ExchangeCodeForToken(context.Background()))

	s := f.Snapshot()
	assert.Equal(t, TokenPair{AccessToken: "AT1", RefreshToken: "RT1"}, s.Tokens)
	assert.Empty(t, s.Code)
	assert.False(t, s.Busy)
	assert.True(t, s.Success)
	assert.Equal(t, msgTokenOK, s.Message)
	assert.Equal(t, Authenticated, s.Stage)

	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, string(Sandbox)+"longtimetoken/oauth2/token", req.URL.String())
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("abc:xyz")), req.Header.Get("Authorization"))
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	form, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	assert.Equal(t, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {"XYZ123"},
		"redirect_uri": {DefaultRedirectURL},
		"scope":        {"scope"},
	}, form)
}

func TestExchangeCodeForTokenMissingFlowState(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		code  string
	}{
		{"no_code", Credentials{ClientID: "abc", ClientSecret: "xyz"}, ""},
		{"no_id", Credentials{ClientSecret: "xyz"}, "XYZ123"},
		{"no_secret", Credentials{ClientID: "abc"}, "XYZ123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests []*http.Request
			f := newFlow(t, tt.creds, stubResponse(200, `{"access_token":"AT1"}`, &requests))
			if tt.code != "" {
				capture(t, f, "/?code="+tt.code)
			}
			err := f.ExchangeCodeForToken(context.Background())
			assert.ErrorIs(t, err, ErrMissingFlowState)
			assert.Empty(t, requests)
			assert.Equal(t, msgMissingFlowState, f.Snapshot().Message)
		})
	}
}

func TestExchangeCodeForTokenFailure(t *testing.T) {
	tests := []struct {
		name   string
		client Doer
		check  func(t *testing.T, err error)
	}{
		{"network", networkDown, func(t *testing.T, err error) {
			assert.Contains(t, err.Error(), "connection refused")
		}},
		{"not_json", stubResponse(200, `<html>gateway</html>`, nil), func(t *testing.T, err error) {
			assert.Contains(t, err.Error(), "json decoding error")
		}},
		{"status", stubResponse(400, `{"error":"invalid_grant","error_description":"code expired"}`, nil), func(t *testing.T, err error) {
			var re *ResponseError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 400, re.StatusCode)
			assert.Equal(t, "invalid_grant", re.Code)
			assert.Equal(t, "code expired", re.Description)
		}},
		{"error_body", stubResponse(200, `{"error":"invalid_client"}`, nil), func(t *testing.T, err error) {
			var re *ResponseError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "invalid_client", re.Code)
		}},
		{"empty", stubResponse(200, `{"refresh_token":"RT1"}`, nil), func(t *testing.T, err error) {
			assert.Contains(t, err.Error(), "empty response received from server")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFlow(t, Credentials{ClientID: "abc", ClientSecret: "xyz"}, tt.client)
			capture(t, f, "/?code=XYZ123")

			err := f.ExchangeCodeForToken(context.Background())
			require.ErrorIs(t, err, ErrRequestFailed)
			tt.check(t, err)

			s := f.Snapshot()
			assert.Empty(t, s.Tokens)
			assert.Equal(t, "XYZ123", s.Code)
			assert.False(t, s.Busy)
			assert.False(t, s.Success)
			assert.Equal(t, msgTokenFailed, s.Message)
		})
	}
}

func TestSubmitInvoice(t *testing.T) {
	var requests []*http.Request
	f := newFlow(t, Credentials{}, stubResponse(200, `{"Status":200,"Confirmation_Number":"CN-001"}`, &requests))

	require.NoError(t, f.SubmitInvoice(context.Background()))

	s := f.Snapshot()
	assert.Equal(t, "CN-001", s.ConfirmationNumber)
	assert.Equal(t, msgInvoiceOK, s.Message)
	assert.False(t, s.Busy)

	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, string(Sandbox)+"Invoices/v1/Approval", req.URL.String())
	// no token is held, the empty bearer is sent anyway
	assert.Equal(t, "Bearer ", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Invoice_ID":"1"}`, string(body))
}

func TestSubmitInvoiceFailure(t *testing.T) {
	tests := []struct {
		name   string
		client Doer
	}{
		{"network", networkDown},
		{"unauthorized", stubResponse(401, `{"message":"invalid token"}`, nil)},
		{"not_json", stubResponse(200, `ok`, nil)},
		{"no_confirmation", stubResponse(200, `{"Status":400,"Message":"invalid vat number"}`, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFlow(t, Credentials{}, tt.client)
			err := f.SubmitInvoice(context.Background())
			require.ErrorIs(t, err, ErrRequestFailed)
			s := f.Snapshot()
			assert.Empty(t, s.ConfirmationNumber)
			assert.False(t, s.Busy)
			assert.Equal(t, msgInvoiceFailed, s.Message)
		})
	}
}

func TestSubmitInvoiceBuilderError(t *testing.T) {
	var requests []*http.Request
	f, err := New(Config{
		Client:  stubResponse(200, `{"Confirmation_Number":"CN-001"}`, &requests),
		Invoice: BuilderFunc(func() (any, error) { return nil, errors.New("no invoice") }),
	})
	require.NoError(t, err)

	err = f.SubmitInvoice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no invoice")
	assert.Empty(t, requests)
	assert.Empty(t, f.Snapshot().ConfirmationNumber)
}

func TestBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := DoerFunc(func(req *http.Request) (*http.Response, error) {
		close(started)
		<-release
		return stubResponse(200, `{"access_token":"AT1","refresh_token":"RT1"}`, nil).Do(req)
	})
	f := newFlow(t, Credentials{ClientID: "abc", ClientSecret: "xyz"}, client)
	capture(t, f, "/?code=XYZ123")

	done := make(chan error)
	go func() {
		done <- f.ExchangeCodeForToken(context.Background())
	}()
	<-started

	assert.True(t, f.Snapshot().Busy)
	assert.ErrorIs(t, f.SubmitInvoice(context.Background()), ErrBusy)
	assert.ErrorIs(t, f.ExchangeCodeForToken(context.Background()), ErrBusy)
	_, err := f.Authorize()
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	s := f.Snapshot()
	assert.False(t, s.Busy)
	assert.Equal(t, "AT1", s.Tokens.AccessToken)
}

func TestRoundTrip(t *testing.T) {
	f := newFlow(t, Credentials{}, stubRoutes(map[string]Doer{
		"/longtimetoken/oauth2/token": stubResponse(200, `{"access_token":"AT1","refresh_token":"RT1"}`, nil),
		"/Invoices/v1/Approval":       stubResponse(200, `{"Confirmation_Number":"CN-001"}`, nil),
	}))

	require.NoError(t, f.Configure(FieldClientID, "abc"))
	require.NoError(t, f.Configure(FieldClientSecret, "xyz"))
	require.NoError(t, f.Configure(FieldEndpoint, "sandbox"))
	_, err := f.Authorize()
	require.NoError(t, err)

	require.True(t, capture(t, f, "http://localhost:3001/?code=XYZ123"))
	require.NoError(t, f.ExchangeCodeForToken(context.Background()))
	require.NoError(t, f.SubmitInvoice(context.Background()))

	s := f.Snapshot()
	assert.Empty(t, s.Code)
	assert.Equal(t, TokenPair{AccessToken: "AT1", RefreshToken: "RT1"}, s.Tokens)
	assert.Equal(t, "CN-001", s.ConfirmationNumber)
	assert.Equal(t, InvoiceSubmitted, s.Stage)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "code_held", CodeHeld.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
