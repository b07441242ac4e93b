package api

import "net/http"

// Authenticator resolves the owner identity for a request. OAuth and session
// handling live outside this service; deployments plug in whatever maps their
// session to a stable identity. An empty identity means anonymous, which
// disables the persistence path entirely.
type Authenticator interface {
	Identify(r *http.Request) string
}

// HeaderAuth trusts an identity header set by the fronting proxy after it
// has authenticated the session.
type HeaderAuth struct {
	Header string
}

// Identify returns the header value, empty for anonymous callers.
func (a HeaderAuth) Identify(r *http.Request) string {
	return r.Header.Get(a.Header)
}
