package cmd

import (
	"testing"
	"time"

	"github.com/habedi/wanderlist/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsToMap(rows [][]string) map[string]string {
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r[0]] = r[1]
	}
	return m
}

func TestSessionRows_LoggedOut(t *testing.T) {
	a := newTestApp(t, newFakeAPI(t))

	rows := rowsToMap(sessionRows(a, time.Now()))
	assert.Equal(t, "unauthenticated", rows["State"])
	assert.Equal(t, "memory", rows["Storage"])
	assert.NotContains(t, rows, "Token")
}

func TestSessionRows_JWTSession(t *testing.T) {
	api := newFakeAPI(t)
	a := newTestApp(t, api)
	require.NoError(t, a.client.Login(t.Context(), "ana", "s3cret"))

	rows := rowsToMap(sessionRows(a, time.Now()))
	assert.Equal(t, "authenticated", rows["State"])
	assert.Equal(t, "ana", rows["Subject"])
	assert.Equal(t, "wanderlist-test", rows["Issuer"])
	assert.Equal(t, "available", rows["Refresh"])
	assert.Contains(t, rows["Expires"], "(in ")
	assert.NotContains(t, rows["Token"], a.store.Get().AccessToken)
}

func TestSessionRows_OpaqueToken(t *testing.T) {
	a := newTestApp(t, newFakeAPI(t))
	require.NoError(t, a.store.Set(t.Context(), auth.Token{AccessToken: "opaque-token-value"}))

	rows := rowsToMap(sessionRows(a, time.Now()))
	assert.Equal(t, "(opaque token)", rows["Subject"])
	assert.Equal(t, "unknown", rows["Expires"])
	assert.Equal(t, "none", rows["Refresh"])
	assert.Equal(t, "opaque-t...", rows["Token"])
}

func TestDescribeExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "unknown", describeExpiry(time.Time{}, now))
	assert.Contains(t, describeExpiry(now.Add(-time.Minute), now), "expired")
	assert.Contains(t, describeExpiry(now.Add(90*time.Second), now), "(in 1m30s)")
}
