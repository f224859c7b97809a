package podauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-podauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRendererRender(t *testing.T) {
	renderer, err := podauth.NewTemplateRenderer("")
	require.NoError(t, err)

	tests := []struct {
		name        string
		purpose     podauth.Purpose
		subject     string
		contains    []string
		notContains []string
	}{
		{
			name:     "account verification",
			purpose:  podauth.PurposeAccountVerification,
			subject:  "Account Verification OTP",
			contains: []string{"Verify your PODSTREAM account", "Account Verification Code", "482913", "Dear Ada", "10 minutes"},
		},
		{
			name:     "password reset",
			purpose:  podauth.PurposePasswordReset,
			subject:  "PODSTREAM Reset Password Verification",
			contains: []string{"Reset your PODSTREAM password", "Password Reset Code", "482913", "Dear Ada"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := renderer.Render(podauth.OTPNotification{
				Email:     "ada@x.com",
				Name:      "Ada",
				Code:      "482913",
				Purpose:   tt.purpose,
				ExpiresIn: 10 * time.Minute,
			})
			require.NoError(t, err)

			assert.Equal(t, "ada@x.com", msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			for _, s := range tt.contains {
				assert.Contains(t, msg.HTML, s)
			}
		})
	}
}

func TestTemplateRendererEscapesName(t *testing.T) {
	renderer, err := podauth.NewTemplateRenderer("PODSTREAM")
	require.NoError(t, err)

	msg, err := renderer.Render(podauth.OTPNotification{
		Email:   "a@x.com",
		Name:    "<script>alert(1)</script>",
		Code:    "123456",
		Purpose: podauth.PurposeAccountVerification,
	})
	require.NoError(t, err)

	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestTemplateRendererFallsBackOnMissingName(t *testing.T) {
	renderer, err := podauth.NewTemplateRenderer("")
	require.NoError(t, err)

	msg, err := renderer.Render(podauth.OTPNotification{
		Email:   "a@x.com",
		Code:    "123456",
		Purpose: podauth.PurposePasswordReset,
	})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "Dear there")
}

func TestTemplateRendererUnknownPurpose(t *testing.T) {
	renderer, err := podauth.NewTemplateRenderer("")
	require.NoError(t, err)

	_, err = renderer.Render(podauth.OTPNotification{Purpose: podauth.Purpose("OTHER")})
	assert.ErrorIs(t, err, podauth.ErrInvalidPurpose)
}

func TestEmailNotifierSendOTP(t *testing.T) {
	renderer, err := podauth.NewTemplateRenderer("")
	require.NoError(t, err)

	var sent *podauth.Message
	notifier := podauth.NewEmailNotifier(renderer, podauth.MailerFunc(func(ctx context.Context, msg *podauth.Message) error {
		sent = msg
		return nil
	}))

	err = notifier.SendOTP(context.Background(), podauth.OTPNotification{
		Email:   "a@x.com",
		Name:    "A",
		Code:    "654321",
		Purpose: podauth.PurposePasswordReset,
	})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, "a@x.com", sent.To)
	assert.Contains(t, sent.HTML, "654321")
}

func TestEmailNotifierPropagatesMailerError(t *testing.T) {
	renderer, err := podauth.NewTemplateRenderer("")
	require.NoError(t, err)

	boom := errors.New("relay down")
	notifier := podauth.NewEmailNotifier(renderer, podauth.MailerFunc(func(ctx context.Context, msg *podauth.Message) error {
		return boom
	}))

	err = notifier.SendOTP(context.Background(), podauth.OTPNotification{
		Email:   "a@x.com",
		Code:    "654321",
		Purpose: podauth.PurposeAccountVerification,
	})
	assert.ErrorIs(t, err, boom)
}

func TestSMTPMailerReportsDialFailure(t *testing.T) {
	mailer := podauth.NewSMTPMailer(podauth.SMTPConfig{
		Host:    "127.0.0.1",
		Port:    1,
		Timeout: time.Second,
	})

	err := mailer.Send(context.Background(), &podauth.Message{To: "a@x.com", Subject: "s", HTML: "<p>x</p>"})
	assert.Error(t, err)
}

func TestPurposeLabel(t *testing.T) {
	assert.Equal(t, "Password Reset", podauth.PurposeLabel(podauth.PurposePasswordReset))
	assert.Equal(t, "Account Verification", podauth.PurposeLabel(podauth.PurposeAccountVerification))
}
