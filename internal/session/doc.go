// Package session stores the bearer credentials used by the HTTP client and
// the progress channel.
//
//	store, err := session.Open("/home/me/.config/vasset/session.json")
//	if !store.IsAuthenticated() {
//	    // log in first
//	}
//
// Expired JWT access tokens are treated as absent, so callers see
// ErrAuthRequired instead of a rejected connection.
package session
