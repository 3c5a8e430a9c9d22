// Package token issues and verifies the signed keys that grant API callers
// access to a specific account.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/go-alone"
)

// ErrTokenExpired is returned when the given token's ttl is in the past
var ErrTokenExpired = errors.New("token: token has expired")

// ErrInvalidToken is returned when the token has an invalid signature or is otherwise invalid
var ErrInvalidToken = errors.New("token: invalid token")

// Generator contains fields needed by NewToken and VerifyToken
type Generator struct {
	s      *goalone.Sword
	maxAge time.Duration

	// Clock is swapped out in tests
	Clock func() time.Time
}

// NewGenerator takes a key and a max age for the token then returns a new token generator
func NewGenerator(k string, m time.Duration) *Generator {
	return &Generator{s: goalone.New([]byte(k)), maxAge: m, Clock: time.Now}
}

// NewToken returns a signed account id using the generator's key and max age
func (tg *Generator) NewToken(accountID string) string {
	exp := tg.Clock().Add(tg.maxAge).UTC().Unix()
	tk := fmt.Sprintf("%v.%v", accountID, exp)

	return string(tg.s.Sign([]byte(tk)))
}

// VerifyToken returns the account id from the given token or an error
func (tg *Generator) VerifyToken(t string) (string, error) {
	tByte, err := tg.s.Unsign([]byte(t))
	if err != nil {
		return "", ErrInvalidToken
	}

	parts := strings.Split(string(tByte), ".")
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}

	tInt64, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if time.Unix(tInt64, 0).Before(tg.Clock()) {
		return "", ErrTokenExpired
	}

	return parts[0], nil
}
