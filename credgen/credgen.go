// Package credgen generates credentials for new disposable accounts: random
// local parts, random passwords and the choice of sending domain.
package credgen

import (
	"errors"
	"math/rand"
	"regexp"

	"github.com/ShovonSheikh/temp-box/mailtm"
)

const localAlphabet = "abcdefghijklmnopqrstuvwxyz1234567890"
const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// ErrNoUsableDomain is returned by PickDomain when the provider offers no
// active public domain
var ErrNoUsableDomain = errors.New("credgen: no active public domain to pick from")

// Generator creates random account credentials
type Generator struct {
	LocalLen    int
	PasswordLen int
}

// New returns a generator producing local parts and passwords of the given lengths
func New(localLen, passwordLen int) *Generator {
	return &Generator{LocalLen: localLen, PasswordLen: passwordLen}
}

// LocalPart generates a new random local part. It is the caller's
// responsibility to check for uniqueness.
func (g *Generator) LocalPart() string {
	a := []byte(localAlphabet)
	name := make([]byte, g.LocalLen)

	for i := range name {
		name[i] = a[rand.Intn(len(a))]
	}

	return string(name)
}

// Password generates a new random password
func (g *Generator) Password() string {
	a := []byte(passwordAlphabet)
	pw := make([]byte, g.PasswordLen)

	for i := range pw {
		pw[i] = a[rand.Intn(len(a))]
	}

	return string(pw)
}

// PickDomain chooses a random active, non-private domain from the provider's
// list. Returns ErrNoUsableDomain when nothing qualifies.
func (g *Generator) PickDomain(domains []mailtm.Domain) (string, error) {
	var usable []string
	for _, d := range domains {
		if d.IsActive && !d.IsPrivate {
			usable = append(usable, d.Domain)
		}
	}

	if len(usable) == 0 {
		return "", ErrNoUsableDomain
	}

	return usable[rand.Intn(len(usable))], nil
}

var isAlphaNumeric = regexp.MustCompile(`^[a-z0-9]+$`).MatchString

// VerifyLocalPart verifies a caller supplied local part is between 3 and 64
// lowercase alphanumeric characters and not a reserved name
func (g *Generator) VerifyLocalPart(l string) error {
	if len(l) < 3 {
		return errors.New("local part must be at least three characters")
	} else if len(l) > 64 {
		return errors.New("local part must be fewer than 64 characters")
	} else if !isAlphaNumeric(l) {
		return errors.New("local part may only contain letters (a-z) and numbers (0-9)")
	} else if l == "webmaster" || l == "admin" || l == "postmaster" || l == "administrator" || l == "root" {
		return errors.New("local part is reserved")
	}
	return nil
}
