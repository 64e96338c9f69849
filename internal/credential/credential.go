// Package credential resolves the secret an account logs in with.
package credential

import (
	"context"
	"fmt"

	"github.com/brandon/mailcore/pkg/types"
)

// Secret is what a session authenticates with.
type Secret struct {
	Password   string
	OAuthToken string
}

// Resolver looks up the secret for an account.
type Resolver interface {
	Resolve(ctx context.Context, acc *types.Account) (Secret, error)
}

// StoreResolver returns the secret carried on the account record itself.
type StoreResolver struct{}

func (StoreResolver) Resolve(_ context.Context, acc *types.Account) (Secret, error) {
	if acc.Password == "" && acc.OAuthToken == "" {
		return Secret{}, fmt.Errorf("no credentials stored for %s", acc.Email)
	}
	return Secret{Password: acc.Password, OAuthToken: acc.OAuthToken}, nil
}
