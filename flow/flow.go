package flow

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultRedirectURL is the redirect uri registered with the tax
// authority for the panel
const DefaultRedirectURL = "http://localhost:3001/"

// scope is the literal scope value the tax authority expects
const scope = "scope"

// status messages shown in the panel
const (
	msgMissingCredentials = "Client ID and Client Secret are required."
	msgMissingFlowState   = "Client ID, Client Secret, and Authorization Code are required."
	msgTokenOK            = "Token retrieved successfully."
	msgTokenFailed        = "Failed to retrieve token."
	msgInvoiceOK          = "Invoice processed successfully."
	msgInvoiceFailed      = "Failed to process invoice."
	msgCredentialsSaved   = "Credentials saved successfully."
	msgCredentialsFailed  = "Failed to save credentials."
)

// Doer is the fetch capability used for the token and invoice calls;
// *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req)
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Builder produces the json body of the invoice approval call
type Builder interface {
	Build() (any, error)
}

// BuilderFunc adapts a function to Builder
type BuilderFunc func() (any, error)

// Build calls f()
func (f BuilderFunc) Build() (any, error) {
	return f()
}

// CredentialStore persists client credentials between runs
type CredentialStore interface {
	Save(c Credentials) error
}

// Credentials are the oauth2 client credentials issued by the tax
// authority
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (c Credentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// TokenPair holds the tokens from a successful code exchange
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Field names a configurable value of the flow
type Field string

// Configurable fields; the values match the panel's form field names
const (
	FieldClientID     Field = "client_id"
	FieldClientSecret Field = "client_secret"
	FieldEndpoint     Field = "base_url"
)

// ErrUnknownField is returned by Configure for a field it does not know
var ErrUnknownField = errors.New("unknown field")

// Config is used to construct a Flow
type Config struct {
	Credentials Credentials
	Endpoint    Endpoint // defaults to Sandbox
	RedirectURL string   // defaults to DefaultRedirectURL
	Client      Doer     // defaults to an http.Client without timeout
	Invoice     Builder
	Store       CredentialStore // optional
}

// Flow is the state of one control panel: client credentials, the
// selected endpoint, the authorization code captured from the redirect,
// the tokens and the invoice confirmation number, together with the
// status message and busy flag shown to the user.
//
// A Flow is safe for concurrent use. The busy flag is set for the
// duration of a token or invoice call and rejects other calls and
// restarts with ErrBusy; it never cancels the request in flight.
type Flow struct {
	creds        Credentials
	endpoint     Endpoint
	redirectURL  string
	code         string
	tokens       TokenPair
	confirmation string
	message      string
	success      bool
	busy         bool
	id           uuid.UUID
	client       Doer
	invoice      Builder
	store        CredentialStore
	locker       sync.Mutex
}

// New returns a new Flow in the unauthenticated stage
func New(cfg Config) (*Flow, error) {
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = DefaultRedirectURL
	}
	if _, err := url.ParseRequestURI(cfg.RedirectURL); err != nil {
		return nil, errors.New("redirect url invalid")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = Sandbox
	}
	if _, err := ParseEndpoint(string(cfg.Endpoint)); err != nil {
		return nil, err
	}
	if cfg.Invoice == nil {
		return nil, errors.New("invoice builder cannot be nil")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &Flow{
		creds:       cfg.Credentials,
		endpoint:    cfg.Endpoint,
		redirectURL: cfg.RedirectURL,
		id:          uuid.New(),
		client:      cfg.Client,
		invoice:     cfg.Invoice,
		store:       cfg.Store,
	}, nil
}

// Configure sets one of the client credentials or the endpoint.
// Credential values are not checked until a flow step needs them.
func (f *Flow) Configure(field Field, value string) error {
	f.locker.Lock()
	defer f.locker.Unlock()

	switch field {
	case FieldClientID:
		f.creds.ClientID = value
	case FieldClientSecret:
		f.creds.ClientSecret = value
	case FieldEndpoint:
		e, err := ParseEndpoint(value)
		if err != nil {
			return err
		}
		f.endpoint = e
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Authorize restarts the flow and returns the authorization url the
// user's browser should be sent to. The authorization server redirects
// back to the redirect url with a "code" query parameter.
func (f *Flow) Authorize() (string, error) {
	f.locker.Lock()
	defer f.locker.Unlock()

	if f.busy {
		return "", ErrBusy
	}
	if !f.creds.complete() {
		f.setMessage(false, msgMissingCredentials)
		return "", ErrMissingCredentials
	}
	f.restart()

	conf := oauth2.Config{
		ClientID: f.creds.ClientID,
		Scopes:   []string{scope},
		Endpoint: oauth2.Endpoint{AuthURL: f.endpoint.authorizeURL()},
	}
	log.Printf("flow %s: authorizing client %s at %s", f.id, f.creds.ClientID, f.endpoint.Name())
	return conf.AuthCodeURL(""), nil
}

// restart clears everything but the credentials and endpoint
func (f *Flow) restart() {
	f.code = ""
	f.tokens = TokenPair{}
	f.confirmation = ""
	f.message = ""
	f.success = false
	f.id = uuid.New()
}

// CaptureCode takes the authorization code from the query of u, the
// url of a page load, if no code is already held. An "error" parameter
// from the authorization server is reported as the status message. The
// returned url is u without those parameters, for replacing the
// location so that a reload does not capture again.
func (f *Flow) CaptureCode(u *url.URL) (*url.URL, bool) {
	clean := *u
	q := u.Query()
	code, authErr := q.Get("code"), q.Get("error")
	for _, k := range []string{"code", "state", "error", "error_description"} {
		q.Del(k)
	}
	clean.RawQuery = q.Encode()

	f.locker.Lock()
	defer f.locker.Unlock()

	if authErr != "" {
		log.Printf("flow %s: authorization server error %s", f.id, authErr)
		f.setMessage(false, fmt.Sprintf("Authorization failed: %s", authErr))
	}
	if code == "" {
		return &clean, false
	}
	if f.code != "" {
		log.Printf("flow %s: authorization code already held, ignoring new code", f.id)
		return &clean, false
	}
	f.code = code
	log.Printf("flow %s: captured authorization code", f.id)
	return &clean, true
}

// SaveCredentials writes the current credentials to the credential
// store
func (f *Flow) SaveCredentials() error {
	f.locker.Lock()
	defer f.locker.Unlock()

	if f.store == nil {
		return errors.New("no credential store configured")
	}
	if err := f.store.Save(f.creds); err != nil {
		f.setMessage(false, msgCredentialsFailed)
		return err
	}
	f.setMessage(true, msgCredentialsSaved)
	return nil
}

// setMessage must be called with the lock held
func (f *Flow) setMessage(success bool, msg string) {
	f.success = success
	f.message = msg
}

// Stage is the position of a Flow in the authorization sequence
type Stage int

// The stages of a flow, in order
const (
	Unauthenticated Stage = iota
	CodeHeld
	Authenticated
	InvoiceSubmitted
)

var stageNames = []string{"unauthenticated", "code_held", "authenticated", "invoice_submitted"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// MarshalText encodes the stage by name
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a copy of the state of a Flow
type State struct {
	ID                 string      `json:"flow_id"`
	Credentials        Credentials `json:"-"`
	Endpoint           Endpoint    `json:"endpoint"`
	Code               string      `json:"code,omitempty"`
	Tokens             TokenPair   `json:"tokens"`
	ConfirmationNumber string      `json:"confirmation_number,omitempty"`
	Message            string      `json:"message,omitempty"`
	Success            bool        `json:"success"`
	Busy               bool        `json:"busy"`
	Stage              Stage       `json:"stage"`
}

// Snapshot returns a copy of the current state
func (f *Flow) Snapshot() State {
	f.locker.Lock()
	defer f.locker.Unlock()

	s := State{
		ID:                 f.id.String(),
		Credentials:        f.creds,
		Endpoint:           f.endpoint,
		Code:               f.code,
		Tokens:             f.tokens,
		ConfirmationNumber: f.confirmation,
		Message:            f.message,
		Success:            f.success,
		Busy:               f.busy,
	}
	switch {
	case f.confirmation != "":
		s.Stage = InvoiceSubmitted
	case f.tokens.AccessToken != "":
		s.Stage = Authenticated
	case f.code != "":
		s.Stage = CodeHeld
	}
	return s
}
