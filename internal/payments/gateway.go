package payments

import (
	"html/template"
	"io"
)

var autoSubmitForm = template.Must(template.New("gateway").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Pagamento</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.ActionURL}}">
{{- range $name, $value := .Fields}}
<input type="hidden" name="{{$name}}" value="{{$value}}">
{{- end}}
<noscript><button type="submit">Continuar para o pagamento</button></noscript>
</form>
</body>
</html>
`))

// RenderForm writes an HTML page that posts the payload to the gateway as
// soon as it loads.
func RenderForm(w io.Writer, payload *RedirectPayload) error {
	return autoSubmitForm.Execute(w, payload)
}
