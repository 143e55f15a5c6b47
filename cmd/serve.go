package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/habedi/wanderlist/auth"
	"github.com/habedi/wanderlist/client"
	"github.com/habedi/wanderlist/guard"
	"github.com/habedi/wanderlist/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html>
<head><title>Wanderlist - Sign in</title></head>
<body>
<h1>Sign in to Wanderlist</h1>
{{if .}}<p class="error">{{.}}</p>{{end}}
<form method="post" action="/login">
<label>Username <input name="username" autocomplete="username"></label>
<label>Password <input name="password" type="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

var homePage = template.Must(template.New("home").Parse(`<!doctype html>
<html>
<head><title>Wanderlist</title></head>
<body>
<h1>Wanderlist</h1>
<p>Signed in{{with .Subject}} as <strong>{{.}}</strong>{{end}}.</p>
<p>Session token {{.Token}}{{with .Expires}}, expires {{.}}{{end}}.</p>
<p>The API is available under <a href="/api/">/api/</a>.</p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body>
</html>
`))

// serveCmd runs a local web front: a login form, and the API proxied with
// the saved session attached.
func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local web front for the Wanderlist API",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := newServeHandler(a)
			if err != nil {
				return clierr.New(clierr.Validation, err.Error(), err)
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info().Str("addr", addr).Msg("Web front listening")
			cmd.Printf("Serving on http://%s (press Ctrl+C to stop)\n", addr)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return clierr.New(clierr.Internal, "Web front stopped unexpectedly", err)
				}
				return nil
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				log.Info().Msg("Shutting down web front")
				return srv.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:8700", "Address to listen on")

	return cmd
}

func newServeHandler(a *app) (http.Handler, error) {
	target, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			// Credentials come from the saved session only.
			r.Out.Header.Del("Authorization")
			r.Out.Header.Del("Cookie")
		},
		Transport:    a.client.Transport(),
		ErrorHandler: proxyError,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		if a.client.AuthState() == auth.StateAuthenticated {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		renderPage(w, http.StatusOK, loginPage, "")
	})
	mux.Handle("POST /login", sameOrigin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			renderPage(w, http.StatusBadRequest, loginPage, "Could not read the form.")
			return
		}
		username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
		if err := validateCredentials(username, password); err != nil {
			renderPage(w, http.StatusBadRequest, loginPage, "Username and password cannot be empty.")
			return
		}
		if err := a.client.Login(r.Context(), username, password); err != nil {
			log.Warn().Err(err).Str("username", username).Msg("Web login failed")
			renderPage(w, http.StatusUnauthorized, loginPage, "Sign in failed. Check your username and password.")
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})))
	mux.Handle("POST /logout", sameOrigin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.client.Logout(r.Context()); err != nil {
			log.Error().Err(err).Msg("Web logout failed")
		}
		http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
	})))
	mux.Handle("/api/", sameOrigin(apiWrites(http.StripPrefix("/api", proxy))))
	mux.Handle("GET /{$}", guard.Middleware(a.client, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, http.StatusOK, homePage, homeView(a))
	})))
	return mux, nil
}

// apiRequestHeader marks a non-JSON write to /api/ as coming from a script
// on this origin. Browsers cannot set it on a cross-site request without a
// CORS preflight, which the front never answers.
const apiRequestHeader = "X-Wanderlist-Request"

// sameOrigin rejects requests a browser reports as coming from another site.
// Requests without Sec-Fetch-Site or Origin are not from a browser page and
// pass.
func sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !fromSameOrigin(r) {
			log.Warn().Str("method", r.Method).Str("path", r.URL.Path).
				Str("origin", r.Header.Get("Origin")).Str("sec_fetch_site", r.Header.Get("Sec-Fetch-Site")).
				Msg("Rejected cross-origin request")
			writeJSONError(w, http.StatusForbidden, "cross-origin requests are not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func fromSameOrigin(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "same-origin", "none":
		return true
	case "":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// apiWrites only lets state-changing requests through when they carry a JSON
// body or apiRequestHeader, neither of which a plain HTML form can send.
func apiWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" && r.Header.Get(apiRequestHeader) == "" {
			writeJSONError(w, http.StatusUnsupportedMediaType, "writes must be JSON or carry "+apiRequestHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type homeData struct {
	Subject string
	Token   string
	Expires string
}

func homeView(a *app) homeData {
	var data homeData
	token := a.store.Get()
	if token == nil {
		return data
	}
	data.Token = token.Prefix()
	expiry := token.Expiry
	if claims, err := auth.Inspect(token.AccessToken); err == nil {
		data.Subject = claims.Subject
		if expiry.IsZero() {
			expiry = claims.ExpiresAt
		}
	}
	if !expiry.IsZero() {
		data.Expires = expiry.Local().Format(time.RFC1123)
	}
	return data
}

func renderPage(w http.ResponseWriter, status int, page *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		log.Error().Err(err).Str("page", page.Name()).Msg("Failed to render page")
	}
}

func proxyError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	message := "upstream request failed"
	switch {
	case errors.Is(err, auth.ErrSessionExpired), errors.Is(err, auth.ErrDoubleFailure):
		status = http.StatusUnauthorized
		message = "session expired, sign in again"
	case errors.Is(err, client.ErrBodyTooLarge):
		status = http.StatusRequestEntityTooLarge
		message = "request body too large"
	case errors.Is(err, context.Canceled):
		return
	}
	log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Proxy request failed")
	writeJSONError(w, status, message)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
