package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"coralrefuge.org/internal/certificate"
)

var certificateHTML = template.Must(template.New("certificate").Parse(`<!doctype html>
<html><body style="font-family:Helvetica,Arial,sans-serif;color:#14283c">
<p>Dear {{.Name}},</p>
<p>Thank you for sponsoring <strong>{{.Hectares}}</strong> of <strong>{{.Area}}</strong>.
Your contribution of {{.Amount}} goes directly to the partner organisation protecting this reef.</p>
<p>Your certificate <strong>{{.ID}}</strong> is attached. Anyone can verify it in the public registry:<br>
<a href="{{.VerifyURL}}">{{.VerifyURL}}</a></p>
<p>Valid until {{.Expires}}.</p>
<p>With gratitude,<br>Coral Refuge</p>
</body></html>`))

// CertificateMessage builds the email carrying a rendered certificate PDF.
func CertificateMessage(to string, d certificate.Data, pdf []byte) (Message, error) {
	view := struct {
		Name, Hectares, Area, Amount, ID, VerifyURL, Expires string
	}{
		Name:      d.SponsorName,
		Hectares:  hectares(d.Hectares),
		Area:      d.AreaName,
		Amount:    certificate.FormatAmount(d.AmountCents, d.Currency),
		ID:        d.ID,
		VerifyURL: d.VerifyURL,
		Expires:   d.ExpiresAt.UTC().Format("2 January 2006"),
	}
	var html bytes.Buffer
	if err := certificateHTML.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render email: %w", err)
	}
	text := fmt.Sprintf("Dear %s,\n\nThank you for sponsoring %s of %s (%s).\nYour certificate %s is attached.\nVerify it at %s\n\nCoral Refuge\n",
		view.Name, view.Hectares, view.Area, view.Amount, view.ID, view.VerifyURL)

	return Message{
		To:      strings.TrimSpace(to),
		Subject: fmt.Sprintf("Your Coral Refuge certificate %s", d.ID),
		HTML:    html.String(),
		Text:    text,
		Attachments: []Attachment{{
			Filename:    d.ID + ".pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}},
	}, nil
}

func hectares(h int) string {
	if h == 1 {
		return "1 hectare"
	}
	return fmt.Sprintf("%d hectares", h)
}
