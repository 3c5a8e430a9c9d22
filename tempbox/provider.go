package tempbox

import (
	"context"

	"github.com/ShovonSheikh/temp-box/mailtm"
)

// Provider lists what the core needs from the remote mail provider. The
// bearer token is passed per call so the cleaner can act on accounts other
// than the one currently being viewed.
type Provider interface {
	Domains(ctx context.Context) ([]mailtm.Domain, error)
	CreateAccount(ctx context.Context, address, password string) (mailtm.Account, error)
	Token(ctx context.Context, address, password string) (string, error)
	GetAccount(ctx context.Context, token string) (mailtm.Account, error)
	Messages(ctx context.Context, token string) ([]mailtm.Message, error)
	Message(ctx context.Context, token, id string) (mailtm.Message, error)
	DeleteMessage(ctx context.Context, token, id string) error
	DeleteAccount(ctx context.Context, token, id string) error
}

var _ Provider = (*mailtm.Client)(nil)
