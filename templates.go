package podauth

import (
	"embed"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/goliatone/go-errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed data/templates/*.html
var templatesFS embed.FS

// DefaultBrand is the product name used in email copy
const DefaultBrand = "PODSTREAM"

var templateFiles = map[Purpose]string{
	PurposeAccountVerification: "data/templates/account_verification.html",
	PurposePasswordReset:       "data/templates/password_reset.html",
}

// SubjectFor returns the email subject line for purpose
func SubjectFor(purpose Purpose) string {
	if purpose == PurposePasswordReset {
		return DefaultBrand + " Reset Password Verification"
	}
	return "Account Verification OTP"
}

// PurposeLabel turns PASSWORD_RESET into "Password Reset"
func PurposeLabel(purpose Purpose) string {
	words := strings.ReplaceAll(strings.ToLower(string(purpose)), "_", " ")
	return cases.Title(language.English).String(words)
}

// TemplateRenderer renders OTP emails from the embedded pongo2 templates
type TemplateRenderer struct {
	brand     string
	templates map[Purpose]*pongo2.Template
}

// NewTemplateRenderer parses every purpose template
func NewTemplateRenderer(brand string) (*TemplateRenderer, error) {
	if brand == "" {
		brand = DefaultBrand
	}

	r := &TemplateRenderer{
		brand:     brand,
		templates: make(map[Purpose]*pongo2.Template, len(templateFiles)),
	}

	for purpose, file := range templateFiles {
		raw, err := templatesFS.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read email template")
		}

		tpl, err := pongo2.FromBytes(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to parse email template").
				WithMetadata(map[string]any{
					"template": file,
				})
		}
		r.templates[purpose] = tpl
	}

	return r, nil
}

// Render builds the message for n
func (r *TemplateRenderer) Render(n OTPNotification) (*Message, error) {
	tpl, ok := r.templates[n.Purpose]
	if !ok {
		return nil, ErrInvalidPurpose
	}

	body, err := tpl.Execute(pongo2.Context{
		"brand":              r.brand,
		"name":               n.Name,
		"code":               n.Code,
		"purpose_label":      PurposeLabel(n.Purpose),
		"expires_in_minutes": int(n.ExpiresIn.Round(time.Minute) / time.Minute),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to render email template")
	}

	return &Message{
		To:      n.Email,
		Subject: SubjectFor(n.Purpose),
		HTML:    body,
	}, nil
}
