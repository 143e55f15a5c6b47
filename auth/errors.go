package auth

import "errors"

var (
	// ErrSessionExpired is returned to every caller waiting on a refresh that failed.
	// The stored token has been cleared by the time a caller sees it.
	ErrSessionExpired = errors.New("session expired, please log in again")

	// ErrDoubleFailure is returned when a request is rejected with 401 again
	// after being retried with a freshly refreshed token.
	ErrDoubleFailure = errors.New("request unauthorized even after token refresh")

	// ErrNoRefreshToken means there is no refresh credential to exchange.
	ErrNoRefreshToken = errors.New("no refresh credential stored")

	// ErrLoggedOut means the session was cleared while a refresh was in flight.
	ErrLoggedOut = errors.New("session was logged out during refresh")

	// ErrEmptyToken is returned by Set for a token without an access value.
	ErrEmptyToken = errors.New("access token is empty")

	// ErrOpaqueToken is returned by Inspect for tokens that are not JWTs.
	ErrOpaqueToken = errors.New("token is not a JWT")
)
