package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Endpoint is the base url of the tax authority open api. Only the
// enumerated endpoints below may be selected.
type Endpoint string

// Sandbox is the tax authority test environment
const Sandbox Endpoint = "https://openapi.taxes.gov.il/shaam/tsandbox/"

// Production is the live tax authority environment
const Production Endpoint = "https://openapi.taxes.gov.il/shaam/production/"

// Endpoints lists the selectable endpoints in display order
var Endpoints = []Endpoint{Sandbox, Production}

// ErrUnknownEndpoint is returned when selecting an endpoint outside
// Endpoints
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// ParseEndpoint returns the endpoint matching either its name
// ("sandbox", "production") or its base url
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	for _, e := range Endpoints {
		if strings.EqualFold(s, e.Name()) || s == string(e) {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, s)
}

// Name is the display name of the endpoint
func (e Endpoint) Name() string {
	switch e {
	case Sandbox:
		return "Sandbox"
	case Production:
		return "Production"
	}
	return string(e)
}

func (e Endpoint) authorizeURL() string {
	return string(e) + "longtimetoken/oauth2/authorize"
}

func (e Endpoint) tokenURL() string {
	return string(e) + "longtimetoken/oauth2/token"
}

func (e Endpoint) approvalURL() string {
	return string(e) + "Invoices/v1/Approval"
}
