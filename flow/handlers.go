package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// HandleHome renders the control panel. When the authorization server
// redirects here with a "code" the code is captured and the browser is
// sent to the same page without it.
func (f *Flow) HandleHome(w http.ResponseWriter, r *http.Request) {
	clean, _ := f.CaptureCode(r.URL)
	if clean.RawQuery != r.URL.RawQuery {
		http.Redirect(w, r, clean.RequestURI(), http.StatusSeeOther)
		return
	}

	data := pageData{
		State:     f.Snapshot(),
		Endpoints: Endpoints,
		CanSave:   f.store != nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := panelTemplate.Execute(w, data); err != nil {
		log.Printf("panel rendering error: %s", err)
	}
}

// applyForm configures the flow from the posted form fields present
func (f *Flow) applyForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	for _, field := range []Field{FieldClientID, FieldClientSecret, FieldEndpoint} {
		if _, ok := r.PostForm[string(field)]; !ok {
			continue
		}
		if err := f.Configure(field, r.PostForm.Get(string(field))); err != nil {
			return err
		}
	}
	return nil
}

// HandleConfigure updates the credentials and endpoint from the form
func (f *Flow) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	if err := f.applyForm(r); err != nil {
		msg := fmt.Sprintf("configure error: %s", err)
		log.Println(msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleAuthorize sends the browser to the authorization server
func (f *Flow) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	authURL, err := f.Authorize()
	if isBusy(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("authorize error: %s", err)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleToken exchanges the held code for tokens. The call is detached
// from the request context so that a closed browser tab does not abort
// it.
func (f *Flow) HandleToken(w http.ResponseWriter, r *http.Request) {
	err := f.ExchangeCodeForToken(context.WithoutCancel(r.Context()))
	if isBusy(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("token error: %s", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleInvoice submits the invoice for approval
func (f *Flow) HandleInvoice(w http.ResponseWriter, r *http.Request) {
	err := f.SubmitInvoice(context.WithoutCancel(r.Context()))
	if isBusy(err) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		log.Printf("invoice error: %s", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSaveCredentials applies any posted credentials and saves them
// to the credential store
func (f *Flow) HandleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	if f.store == nil {
		http.Error(w, "no credential store configured", http.StatusNotImplemented)
		return
	}
	if err := f.applyForm(r); err != nil {
		msg := fmt.Sprintf("configure error: %s", err)
		log.Println(msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if err := f.SaveCredentials(); err != nil {
		log.Printf("credential save error: %s", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleState returns the flow state as json; the client secret is not
// included
func (f *Flow) HandleState(w http.ResponseWriter, r *http.Request) {
	j, err := json.Marshal(f.Snapshot())
	if err != nil {
		msg := fmt.Sprintf("state json encoding error: %s", err)
		log.Println(msg)
		http.Error(w, msg, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(j)
}

// HandleLivez reports that the server is up
func (f *Flow) HandleLivez(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

// isBusy reports whether err came from a rejected concurrent call
func isBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
