package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// approvalResults is the part of the invoice approval response used
type approvalResults struct {
	ConfirmationNumber string `json:"Confirmation_Number"`
	Message            string `json:"Message"`
}

// SubmitInvoice posts the invoice from the builder to the approval
// endpoint using the access token as bearer, and records the returned
// confirmation number. The access token is not checked first; with no
// token the call fails at the tax authority like any other failure.
func (f *Flow) SubmitInvoice(ctx context.Context) error {
	f.locker.Lock()
	if f.busy {
		f.locker.Unlock()
		return ErrBusy
	}
	accessToken, endpoint, id := f.tokens.AccessToken, f.endpoint, f.id
	f.busy = true
	f.locker.Unlock()

	confirmation, err := f.approve(ctx, endpoint.approvalURL(), accessToken)

	f.locker.Lock()
	defer f.locker.Unlock()
	f.busy = false
	if err != nil {
		log.Printf("flow %s: approval error: %s", id, err)
		f.setMessage(false, msgInvoiceFailed)
		return err
	}
	f.confirmation = confirmation
	f.setMessage(true, msgInvoiceOK)
	log.Printf("flow %s: invoice approved, confirmation number %s", id, confirmation)
	return nil
}

func (f *Flow) approve(ctx context.Context, approvalURL, accessToken string) (string, error) {
	data, err := f.invoice.Build()
	if err != nil {
		return "", fmt.Errorf("invoice data error: %w", err)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("invoice json encoding error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, approvalURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	var results approvalResults
	status, raw, err := f.do(req, &results)
	if err != nil {
		return "", err
	}
	if results.ConfirmationNumber == "" {
		msg := results.Message
		if msg == "" {
			msg = "no confirmation number in response"
		}
		return "", &ResponseError{StatusCode: status, Body: string(raw), Description: msg}
	}
	return results.ConfirmationNumber, nil
}
