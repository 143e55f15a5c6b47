package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OAuth2Refresher performs the refresh_token grant against an OAuth2 token
// endpoint. Its HTTP client must not route through the authenticated
// transport, otherwise a 401 from the token endpoint would trigger a refresh.
type OAuth2Refresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

// NewOAuth2Refresher builds a refresher for tokenURL that sends over base
// (http.DefaultTransport when nil) with the given timeout.
func NewOAuth2Refresher(clientID, clientSecret, tokenURL string, base http.RoundTripper, timeout time.Duration) *OAuth2Refresher {
	if base == nil {
		base = http.DefaultTransport
	}
	return &OAuth2Refresher{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		HTTPClient: &http.Client{Transport: base, Timeout: timeout},
	}
}

// Refresh exchanges refreshToken for a new token. When the endpoint omits a
// new refresh credential the old one is kept.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	// An empty access token is never valid, so the source always hits the endpoint.
	source := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	refreshed, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			log.Warn().Int("status", retrieveErr.Response.StatusCode).Str("error_code", retrieveErr.ErrorCode).Msg("Token endpoint rejected refresh")
		}
		return nil, fmt.Errorf("failed to perform token refresh: %w", err)
	}
	token := &Token{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		Expiry:       refreshed.Expiry,
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("failed to perform token refresh: %w", ErrEmptyToken)
	}
	return token, nil
}
