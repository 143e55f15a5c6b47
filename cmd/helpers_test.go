package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/habedi/wanderlist/config"
	"github.com/habedi/wanderlist/db"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a token endpoint plus a protected API under /v1.
type fakeAPI struct {
	server       *httptest.Server
	mu           sync.Mutex
	valid        map[string]bool
	issued       atomic.Int32
	refreshCalls atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{valid: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", api.token)
	mux.HandleFunc("/v1/", api.resource)
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (f *fakeAPI) baseURL() string  { return f.server.URL + "/v1" }
func (f *fakeAPI) tokenURL() string { return f.server.URL + "/oauth/token" }

// expireAll invalidates every access token issued so far.
func (f *fakeAPI) expireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = map[string]bool{}
}

func (f *fakeAPI) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") == "ana" && r.PostForm.Get("password") == "s3cret" {
			f.issue(w, "ana")
			return
		}
	case "refresh_token":
		f.refreshCalls.Add(1)
		if r.PostForm.Get("refresh_token") == "refresh-ana" {
			f.issue(w, "ana")
			return
		}
	}
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
}

func (f *fakeAPI) issue(w http.ResponseWriter, subject string) {
	n := f.issued.Add(1)
	access, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "wanderlist-test",
		ID:        string(rune('a' + n)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-key"))

	f.mu.Lock()
	f.valid[access] = true
	f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": "refresh-" + subject,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (f *fakeAPI) resource(w http.ResponseWriter, r *http.Request) {
	access := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	ok := f.valid[access]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"method": r.Method,
		"path":   r.URL.Path,
		"body":   string(body),
	})
}

// newTestApp opens an app on in-memory storage against api.
func newTestApp(t *testing.T, api *fakeAPI) *app {
	t.Helper()
	a := &app{v: config.New()}
	cfg := &config.Config{
		BaseURL:        api.baseURL(),
		TokenURL:       api.tokenURL(),
		ClientID:       "wanderlist-cli",
		Storage:        db.BackendMemory,
		RequestTimeout: 5 * time.Second,
		RefreshTimeout: 5 * time.Second,
	}
	require.NoError(t, a.openWith(context.Background(), cfg))
	t.Cleanup(func() { _ = a.close() })
	return a
}

// runCLI executes the root command once, like a separate process would.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	rootCmd, a := newRootCmd()
	defer a.close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}
