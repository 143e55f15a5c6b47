package auth

import "context"

// Refresher defines the contract for any component that can exchange a
// refresh credential for a new token at the token-issuing endpoint.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// RefresherFunc adapts a plain function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*Token, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return f(ctx, refreshToken)
}
