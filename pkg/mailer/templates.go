package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
)

// VerificationCodeData feeds the card verification email.
type VerificationCodeData struct {
	Name          string
	Code          string
	CardLast4     string
	ExpiryMinutes int
}

var verificationHTML = template.Must(template.New("verification_code").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #1f2933;">
    <p>Hi{{if .Name}} {{.Name}}{{end}},</p>
    <p>Use the code below to confirm the change to your card ending in <strong>{{.CardLast4}}</strong>.</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
    <p>The code expires in {{.ExpiryMinutes}} minutes and can be used once.</p>
    <p>If you did not request this change, ignore this email and review your account.</p>
    <p>Bazaar</p>
  </body>
</html>
`))

var verificationText = texttemplate.Must(texttemplate.New("verification_code_text").Parse(
	`Your Bazaar verification code is {{.Code}}. It expires in {{.ExpiryMinutes}} minutes and confirms the change to your card ending in {{.CardLast4}}.
`))

// VerificationCodeMessage renders the email sent when a user asks to edit a card.
func VerificationCodeMessage(to string, data VerificationCodeData) (Message, error) {
	if strings.TrimSpace(data.Code) == "" {
		return Message{}, fmt.Errorf("verification code is required")
	}
	var html, text bytes.Buffer
	if err := verificationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	if err := verificationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render verification email text: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Your Bazaar verification code",
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
