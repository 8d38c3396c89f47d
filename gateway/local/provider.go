package local

import "context"

// Identity is what a social provider vouches for.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// IdentityProvider turns a provider credential (an OAuth authorization code
// for Google) into an Identity.
type IdentityProvider interface {
	Name() string
	Identify(ctx context.Context, credential string) (Identity, error)
}
