package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/habedi/wanderlist/db"
	"github.com/rs/zerolog/log"
)

// Fixed storage keys for the session.
const (
	AccessTokenKey  = "wanderlist.access_token"
	RefreshTokenKey = "wanderlist.refresh_token"
	ExpiresAtKey    = "wanderlist.expires_at"
)

// TokenStore holds the current token in memory and writes every change
// through to a db.Storage, so a later process can Load it back.
//
// Get never touches the storage. Writers are serialized so the persisted
// value always matches the last in-memory mutation.
type TokenStore struct {
	storage db.Storage

	writeMu sync.Mutex

	mu         sync.RWMutex
	current    *Token
	loaded     bool
	generation uint64
}

// NewTokenStore creates an empty, not yet loaded store over storage.
func NewTokenStore(storage db.Storage) *TokenStore {
	return &TokenStore{storage: storage}
}

// Load reads the persisted session. After Load the store reports a definite
// state even if reading failed, in which case it is unauthenticated.
func (s *TokenStore) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	token, err := s.read(ctx)

	s.mu.Lock()
	s.current = token
	s.loaded = true
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if token != nil {
		log.Debug().Str("token", token.Prefix()).Msg("Session loaded from storage")
	}
	return nil
}

func (s *TokenStore) read(ctx context.Context) (*Token, error) {
	access, ok, err := s.storage.Read(ctx, AccessTokenKey)
	if err != nil || !ok || access == "" {
		return nil, err
	}
	token := &Token{AccessToken: access}
	if token.RefreshToken, _, err = s.storage.Read(ctx, RefreshTokenKey); err != nil {
		return nil, err
	}
	expiresAt, ok, err := s.storage.Read(ctx, ExpiresAtKey)
	if err != nil {
		return nil, err
	}
	if ok && expiresAt != "" {
		if token.Expiry, err = time.Parse(time.RFC3339, expiresAt); err != nil {
			log.Warn().Err(err).Str("expires_at", expiresAt).Msg("Ignoring unparsable token expiry")
			token.Expiry = time.Time{}
		}
	}
	return token, nil
}

// Get returns a copy of the current token, or nil when there is none.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Generation is bumped by every Set and Clear.
func (s *TokenStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// AuthState derives the authentication state from token presence.
func (s *TokenStore) AuthState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case !s.loaded:
		return StateUnknown
	case s.current != nil:
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Set replaces the current token and persists it. The in-memory value is
// updated even when persisting fails; the persistence error is returned.
func (s *TokenStore) Set(ctx context.Context, token Token) error {
	if token.AccessToken == "" {
		return ErrEmptyToken
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.apply(ctx, &token)
}

// Clear removes the current token and its persisted copy. Clearing an empty
// store is a no-op that still succeeds.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.apply(ctx, nil)
}

// CompareAndSet applies token (nil clears) only if no Set or Clear happened
// since gen was observed. It reports whether the change was applied.
func (s *TokenStore) CompareAndSet(ctx context.Context, gen uint64, token *Token) (bool, error) {
	if token != nil && token.AccessToken == "" {
		return false, ErrEmptyToken
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.Generation() != gen {
		return false, nil
	}
	return true, s.apply(ctx, token.clone())
}

// apply must be called with writeMu held.
func (s *TokenStore) apply(ctx context.Context, token *Token) error {
	s.mu.Lock()
	s.current = token
	s.loaded = true
	s.generation++
	s.mu.Unlock()

	if token == nil {
		return s.remove(ctx)
	}
	return s.persist(ctx, token)
}

// persist writes all session keys in one batch, so a failed write never
// leaves a new access token next to an old refresh token or expiry.
func (s *TokenStore) persist(ctx context.Context, token *Token) error {
	batch := db.Batch{Writes: map[string]string{AccessTokenKey: token.AccessToken}}
	if token.RefreshToken != "" {
		batch.Writes[RefreshTokenKey] = token.RefreshToken
	} else {
		batch.Removes = append(batch.Removes, RefreshTokenKey)
	}
	if !token.Expiry.IsZero() {
		batch.Writes[ExpiresAtKey] = token.Expiry.UTC().Format(time.RFC3339)
	} else {
		batch.Removes = append(batch.Removes, ExpiresAtKey)
	}
	if err := s.storage.Apply(ctx, batch); err != nil {
		log.Error().Err(err).Msg("Failed to persist session")
		return fmt.Errorf("failed to persist session: %w", err)
	}
	log.Debug().Str("token", token.Prefix()).Msg("Token stored")
	return nil
}

func (s *TokenStore) remove(ctx context.Context) error {
	batch := db.Batch{Removes: []string{AccessTokenKey, RefreshTokenKey, ExpiresAtKey}}
	if err := s.storage.Apply(ctx, batch); err != nil {
		log.Error().Err(err).Msg("Failed to remove session")
		return fmt.Errorf("failed to remove session: %w", err)
	}
	log.Debug().Msg("Token cleared")
	return nil
}
