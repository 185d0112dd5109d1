package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/sakif/smilecook/internal/mailer"
)

// ACTIVATION EMAIL
//
// Both parts of the message are rendered from templates parsed once at
// startup. html/template escapes the username and checks the link lands in
// a safe URL context, so a username like "<b>bob</b>" reaches the inbox as
// text, not markup. The plain-text part uses text/template with the same
// data so the two never drift apart.

const activationSubject = "Please confirm your registration."

var activationText = texttemplate.Must(texttemplate.New("activation.txt").Parse(
	`Hi {{.Username}},

Thanks for using SmileCook! Please confirm your registration by clicking on the link:
{{.Link}}
`))

var activationHTML = htmltemplate.Must(htmltemplate.New("activation.html").Parse(
	`<p>Hi {{.Username}},</p>` +
		`<p>Thanks for using SmileCook! Please confirm your registration by clicking on the link below.</p>` +
		`<p><a href="{{.Link}}">Activate my account</a></p>`))

type activationData struct {
	Username string
	Link     string
}

// activationMessage renders the email sent after registration.
func activationMessage(to, username, link string) (mailer.Message, error) {
	data := activationData{Username: username, Link: link}

	var text, html bytes.Buffer
	if err := activationText.Execute(&text, data); err != nil {
		return mailer.Message{}, fmt.Errorf("rendering activation text: %w", err)
	}
	if err := activationHTML.Execute(&html, data); err != nil {
		return mailer.Message{}, fmt.Errorf("rendering activation html: %w", err)
	}

	return mailer.Message{
		To:      to,
		Subject: activationSubject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
