package flow

import "html/template"

// pageData is rendered by panelTemplate
type pageData struct {
	State
	Endpoints []Endpoint
	CanSave   bool
}

var panelTemplate = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html>
<head><title>Application Control Panel</title></head>
<body>
<h1>Application Control Panel</h1>
<form method="post" action="/configure">
<p><label for="baseUrl">Base URL</label>
<select id="baseUrl" name="base_url">
{{- range .Endpoints}}
<option value="{{.}}"{{if eq . $.Endpoint}} selected{{end}}>{{.Name}}</option>
{{- end}}
</select></p>
<p><label for="client_id">Client ID</label>
<input type="text" id="client_id" name="client_id" value="{{.Credentials.ClientID}}"></p>
<p><label for="client_secret">Client Secret</label>
<input type="text" id="client_secret" name="client_secret" value="{{.Credentials.ClientSecret}}"></p>
<button type="submit"{{if .Busy}} disabled{{end}}>Update</button>
{{- if .CanSave}}
<button type="submit" formaction="/credentials"{{if .Busy}} disabled{{end}}>Remember credentials</button>
{{- end}}
</form>
<form method="post" action="/authorize" style="display:inline">
<button type="submit"{{if .Busy}} disabled{{end}}>{{if .Code}}Reauthorize{{else}}Get Authorization Code{{end}}</button>
</form>
{{- if .Code}}
<form method="post" action="/token" style="display:inline">
<button type="submit"{{if .Busy}} disabled{{end}}>Get Token</button>
</form>
<div class="alert alert-info">Authorization Code: {{.Code}}</div>
{{- end}}
{{- if .Message}}
<div class="alert {{if .Success}}alert-success{{else}}alert-danger{{end}}">{{.Message}}</div>
{{- end}}
{{- if .Tokens.AccessToken}}
<div class="card">
<h4>Access Token: {{.Tokens.AccessToken}}</h4>
<h4>Refresh Token: {{.Tokens.RefreshToken}}</h4>
<form method="post" action="/invoice">
<button type="submit"{{if .Busy}} disabled{{end}}>Get Invoice</button>
</form>
</div>
{{- end}}
{{- if .ConfirmationNumber}}
<div class="card"><h3>Confirmation Number: {{.ConfirmationNumber}}</h3></div>
{{- end}}
</body>
</html>
`))
