package auth

import "time"

// Token is the user's current credentials. AccessToken is opaque to this
// package; RefreshToken may be empty when the issuer did not hand one out.
type Token struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Expired reports whether the token carries an expiry that has passed at now.
// A token without an expiry never reports expired; the server decides with a 401.
func (t *Token) Expired(now time.Time) bool {
	if t == nil || t.Expiry.IsZero() {
		return false
	}
	return !now.Before(t.Expiry)
}

// Prefix returns a short, log-safe prefix of the access token.
func (t *Token) Prefix() string {
	if t == nil {
		return ""
	}
	if len(t.AccessToken) <= 8 {
		return "****"
	}
	return t.AccessToken[:8] + "..."
}

func (t *Token) clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
