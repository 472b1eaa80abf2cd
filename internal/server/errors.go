package server

import "net/http"

// httpError is a wire-level protocol failure. Handlers raise it as a normal
// error value; ServeHTTP converts it into the matching status line with a
// minimal body at the single top-level boundary.
type httpError struct {
	code int
	body string
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

var (
	// errNotFound covers malformed paths, unsupported versions, unknown
	// top-level handlers, and unknown collections/records where absence must
	// read as 404.
	errNotFound = &httpError{code: http.StatusNotFound, body: "Not found"}

	// errUnauthorized is raised for usernames not present in the store,
	// before the rest of the path is inspected.
	errUnauthorized = &httpError{code: http.StatusUnauthorized}
)
