package credgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShovonSheikh/temp-box/mailtm"
)

func TestLocalPart(t *testing.T) {
	g := New(8, 20)

	for i := 0; i < 100; i++ {
		l := g.LocalPart()
		assert.Len(t, l, 8)
		assert.NoError(t, g.VerifyLocalPart(l))
	}
}

func TestPassword(t *testing.T) {
	g := New(8, 20)

	pw := g.Password()
	assert.Len(t, pw, 20)

	// two draws colliding would mean the source is broken
	assert.NotEqual(t, pw, g.Password())
}

func TestPickDomain(t *testing.T) {
	g := New(8, 20)

	domains := []mailtm.Domain{
		{Domain: "inactive.example.com", IsActive: false},
		{Domain: "private.example.com", IsActive: true, IsPrivate: true},
		{Domain: "example.com", IsActive: true},
	}

	d, err := g.PickDomain(domains)
	require.NoError(t, err)
	assert.Equal(t, "example.com", d)
}

func TestPickDomainNoneUsable(t *testing.T) {
	g := New(8, 20)

	tests := []struct {
		name    string
		domains []mailtm.Domain
	}{
		{name: "empty list", domains: nil},
		{name: "inactive only", domains: []mailtm.Domain{{Domain: "example.com", IsActive: false}}},
		{name: "private only", domains: []mailtm.Domain{{Domain: "example.com", IsActive: true, IsPrivate: true}}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := g.PickDomain(test.domains)
			assert.ErrorIs(t, err, ErrNoUsableDomain)
		})
	}
}

func TestVerifyLocalPart(t *testing.T) {
	g := New(8, 20)

	tests := []struct {
		name      string
		local     string
		expectErr bool
	}{
		{name: "valid", local: "d4f7s6f4", expectErr: false},
		{name: "minimum length", local: "abc", expectErr: false},
		{name: "too short", local: "ab", expectErr: true},
		{name: "too long", local: "d4f7s6f4d4f7s6f4d4f7s6f4d4f7s6f4d4f7s6f4d4f7s6f4d4f7s6f4d4f7s6f4d", expectErr: true},
		{name: "uppercase", local: "Mailbox1", expectErr: true},
		{name: "punctuation", local: "mail.box", expectErr: true},
		{name: "reserved admin", local: "admin", expectErr: true},
		{name: "reserved root", local: "root", expectErr: true},
		{name: "reserved postmaster", local: "postmaster", expectErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := g.VerifyLocalPart(test.local)
			if test.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
