// Package guard decides whether a protected view may be shown for the
// current authentication state. It fails closed: anything short of a
// definite authenticated state redirects to the login entry point.
package guard

import (
	"net/http"

	"github.com/habedi/wanderlist/auth"
	"github.com/rs/zerolog/log"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

// Decision is the outcome of evaluating the guard. Exactly one of Render and
// RedirectTo is set.
type Decision struct {
	Render     bool
	RedirectTo string
}

// Evaluate maps state to a decision. Unknown is treated like unauthenticated.
func Evaluate(state auth.State) Decision {
	if state == auth.StateAuthenticated {
		return Decision{Render: true}
	}
	return Decision{RedirectTo: LoginPath}
}

// Navigator moves the host to another location.
type Navigator interface {
	Navigate(to string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(to string)

func (f NavigatorFunc) Navigate(to string) { f(to) }

// Route renders children or navigates to the login path. It only reads
// state, so it can be called again whenever the state changes.
func Route(state auth.State, nav Navigator, children func()) {
	decision := Evaluate(state)
	if decision.Render {
		if children != nil {
			children()
		}
		return
	}
	nav.Navigate(decision.RedirectTo)
}

// Middleware protects next, answering 303 See Other to LoginPath when the
// session in src is not definitely authenticated.
func Middleware(src auth.StateSource, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := src.AuthState()
		Route(state, NavigatorFunc(func(to string) {
			log.Debug().Str("path", r.URL.Path).Str("state", state.String()).Msg("Redirecting to login")
			http.Redirect(w, r, to, http.StatusSeeOther)
		}), func() {
			next.ServeHTTP(w, r)
		})
	})
}
