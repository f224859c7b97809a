//go:build race

package podauth

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds run bcrypt several times slower, keep the suites under their timeouts
	return bcrypt.DefaultCost
}
