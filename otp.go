package podauth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/goliatone/go-errors"
)

const (
	// DefaultOTPLength matches the six digit codes users are used to
	DefaultOTPLength = 6
	minOTPLength     = 4
	maxOTPLength     = 10
)

// OTPGenerator produces numeric one time codes
type OTPGenerator interface {
	Generate(length int) (string, error)
}

// OTPGeneratorFunc adapts a function to OTPGenerator
type OTPGeneratorFunc func(length int) (string, error)

// Generate implements OTPGenerator.
func (f OTPGeneratorFunc) Generate(length int) (string, error) {
	return f(length)
}

// GenerateOTP returns a zero padded code of length digits drawn from
// crypto/rand.
func GenerateOTP(length int) (string, error) {
	if length < minOTPLength || length > maxOTPLength {
		return "", errors.New("OTP length out of range", errors.CategoryBadInput).
			WithMetadata(map[string]any{
				"length": length,
				"min":    minOTPLength,
				"max":    maxOTPLength,
			})
	}

	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read random source")
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

var defaultOTPGenerator = OTPGeneratorFunc(GenerateOTP)
