package podauth

import (
	"context"
	"time"
)

// OTPNotification carries everything needed to tell a user about a code
type OTPNotification struct {
	Email     string
	Name      string
	Code      string
	Purpose   Purpose
	ExpiresIn time.Duration
}

// Notifier delivers OTP codes. It never generates them.
type Notifier interface {
	SendOTP(ctx context.Context, n OTPNotification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n OTPNotification) error

// SendOTP implements Notifier.
func (f NotifierFunc) SendOTP(ctx context.Context, n OTPNotification) error {
	return f(ctx, n)
}

// Message is a rendered HTML email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer transports rendered messages
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// MailerFunc adapts a function to Mailer
type MailerFunc func(ctx context.Context, msg *Message) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// EmailNotifier renders a purpose template and hands it to a Mailer
type EmailNotifier struct {
	renderer *TemplateRenderer
	mailer   Mailer
}

var _ Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier returns a notifier using renderer and mailer
func NewEmailNotifier(renderer *TemplateRenderer, mailer Mailer) *EmailNotifier {
	return &EmailNotifier{
		renderer: renderer,
		mailer:   mailer,
	}
}

func (e *EmailNotifier) SendOTP(ctx context.Context, n OTPNotification) error {
	msg, err := e.renderer.Render(n)
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, msg)
}

// LogMailer logs messages instead of sending them. Useful while developing
// since codes show up in the server output.
type LogMailer struct {
	logger Logger
}

// NewLogMailer returns a mailer writing to logger
func NewLogMailer(logger Logger) *LogMailer {
	return &LogMailer{logger: normalizeLogger(logger)}
}

func (l *LogMailer) Send(ctx context.Context, msg *Message) error {
	l.logger.Info("email not sent, log mailer in use", "to", msg.To, "subject", msg.Subject, "html", msg.HTML)
	return nil
}
