/*
ShaamInvoicePanel v0.1.0

Summary:

ShaamInvoicePanel is a small local web control panel for the Israel Tax
Authority ("Shaam") open api. It runs the OAuth2 authorization code
flow for a registered application and submits an invoice approval
request with the resulting access token, showing the confirmation
number returned.

The panel is served on the loopback interface at the address registered
as the application's redirect uri (http://localhost:3001/ by default).
Choose the sandbox or production api, enter the client id and secret
(seeded from credentials.yaml, or the SHAAM_CLIENT_ID and
SHAAM_CLIENT_SECRET environment variables or a .env file), then:

	Get Authorization Code   log in at the tax authority
	Get Token                exchange the returned code for tokens
	Get Invoice              submit the invoice, show the confirmation number

The invoice sent is a built-in sample unless a yaml invoice file is
given with --invoice.

The ShaamInvoicePanel/flow package can also drive the flow from a Go
programme; see examples/example.go.

This software is provided under an MIT licence, with no warranty.
*/

package main
