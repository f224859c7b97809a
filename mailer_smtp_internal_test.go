package podauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMIMEMessage(t *testing.T) {
	raw := string(buildMIMEMessage("no-reply@podstream.dev", &Message{
		To:      "a@x.com",
		Subject: "Account Verification OTP",
		HTML:    "<p>123456</p>",
	}))

	headers, body, found := strings.Cut(raw, "\r\n\r\n")
	assert.True(t, found)
	assert.Contains(t, headers, "From: no-reply@podstream.dev")
	assert.Contains(t, headers, "To: a@x.com")
	assert.Contains(t, headers, "Subject: Account Verification OTP")
	assert.Contains(t, headers, `Content-Type: text/html; charset="utf-8"`)
	assert.Equal(t, "<p>123456</p>", body)
}

func TestNewSMTPMailerDefaults(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.gmail.com", Username: "podstream@gmail.com"})

	assert.Equal(t, 465, m.cfg.Port)
	assert.True(t, m.cfg.ImplicitTLS)
	assert.Equal(t, "podstream@gmail.com", m.cfg.From)
}
