package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRefreshTimeout bounds a single call to the token endpoint.
const DefaultRefreshTimeout = 10 * time.Second

// Service orchestrates the token refresh process using its dependencies.
type Service struct {
	Store     *TokenStore
	Refresher Refresher
	Timeout   time.Duration
}

// NewService is the constructor for the auth service.
func NewService(store *TokenStore, refresher Refresher) *Service {
	return &Service{
		Store:     store,
		Refresher: refresher,
		Timeout:   DefaultRefreshTimeout,
	}
}

// RefreshSession exchanges the stored refresh credential for a new token.
//
// On success the new token is stored and returned. On any failure, timeout
// included, the stored token is cleared and the error wraps ErrSessionExpired.
// If the store was changed by someone else while the call was in flight
// (a logout or a new login), the refresh outcome is discarded: the newer
// token is returned if there is one, ErrLoggedOut otherwise.
func (s *Service) RefreshSession(ctx context.Context) (*Token, error) {
	gen := s.Store.Generation()
	current := s.Store.Get()
	if current == nil || current.RefreshToken == "" {
		s.expire(ctx, gen, ErrNoRefreshToken)
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrNoRefreshToken)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().Msg("Access token rejected, refreshing...")
	started := time.Now()
	token, err := s.Refresher.Refresh(callCtx, current.RefreshToken)
	if err == nil && token == nil {
		err = ErrEmptyToken
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("token refresh timed out after %s: %w", timeout, err)
		}
		if !s.expire(ctx, gen, err) {
			if newer := s.Store.Get(); newer != nil {
				log.Info().Msg("Session replaced during refresh, using the newer token")
				return newer, nil
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	applied, err := s.Store.CompareAndSet(ctx, gen, token)
	if err != nil {
		// The in-memory token is in place; only durability is lost.
		log.Warn().Err(err).Msg("Refreshed token could not be persisted")
	}
	if !applied {
		if newer := s.Store.Get(); newer != nil {
			log.Info().Msg("Session replaced during refresh, using the newer token")
			return newer, nil
		}
		log.Info().Msg("Session logged out during refresh, discarding refreshed token")
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrLoggedOut)
	}
	log.Info().Dur("elapsed", time.Since(started)).Str("token", token.Prefix()).Msg("Token refreshed and saved successfully.")
	return token.clone(), nil
}

// expire clears the session unless it changed since gen, and reports whether it did.
func (s *Service) expire(ctx context.Context, gen uint64, cause error) bool {
	log.Warn().Err(cause).Msg("Token refresh failed, clearing session")
	applied, err := s.Store.CompareAndSet(ctx, gen, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear session after refresh failure")
	}
	return applied
}
