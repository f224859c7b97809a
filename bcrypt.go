package podauth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the input length bcrypt accepts
const maxPasswordBytes = 72

// BcryptHasher implements PasswordHasher using bcrypt. Every call to
// HashPassword gets a fresh salt which bcrypt embeds in the digest.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost. Values outside the range
// bcrypt accepts fall back to the package default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// ValidatePassword checks password is something bcrypt can hash
func ValidatePassword(password string) error {
	if password == "" {
		return ErrNoEmptyString
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword will generate a password hash
func (b *BcryptHasher) HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	return string(h), err
}

// VerifyPassword reports whether password matches hash. Malformed
// hashes are reported as a mismatch.
func (b *BcryptHasher) VerifyPassword(password, hash string) bool {
	return ComparePasswordAndHash(password, hash) == nil
}

// HashPassword hashes with the default cost
func HashPassword(password string) (string, error) {
	return NewBcryptHasher(0).HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if hash == "" {
		return ErrMismatchedHashAndPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
