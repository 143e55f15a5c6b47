package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/habedi/wanderlist/auth"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Login exchanges username and password for a token with the password grant
// and stores it. The token endpoint is reached over the base transport.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password cannot be empty")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base, Timeout: c.cfg.RefreshTimeout})

	log.Info().Str("username", username).Msg("Logging in")
	issued, err := c.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			log.Warn().Int("status", retrieveErr.Response.StatusCode).Str("error_code", retrieveErr.ErrorCode).Msg("Token endpoint rejected credentials")
		}
		return fmt.Errorf("login failed: %w", err)
	}

	token := auth.Token{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		Expiry:       issued.Expiry,
	}
	if err := c.store.Set(ctx, token); err != nil {
		if errors.Is(err, auth.ErrEmptyToken) {
			return fmt.Errorf("login failed: %w", err)
		}
		// The session is usable in this process even though it was not saved.
		log.Error().Err(err).Msg("Failed to persist session")
		return fmt.Errorf("logged in but failed to save session: %w", err)
	}
	log.Info().Str("token", token.Prefix()).Msg("Login successful")
	return nil
}

// Logout forgets the stored session. Logging out twice is not an error.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	log.Info().Msg("Logged out")
	return nil
}
