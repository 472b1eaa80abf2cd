// Package server implements the HTTP surface of the mock sync server: the
// request router, the storage and info handlers, and the server lifecycle.
//
// The preferred way of using Server in tests is to introspect it directly
// through the store accessors; the Callback hooks cover the operations that
// are hard to verify that way.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/dimitrije/weavemock/internal/store"
	"github.com/dimitrije/weavemock/internal/timestamp"
)

// APIVersion is the storage API version this server speaks.
const APIVersion = "1.1"

// Sync request paths have the form
//
//	/$version/$user/$further
//
// where $further is storage/$collection/$wbo, storage/$collection, or
// info/$op.
var (
	pathRE    = regexp.MustCompile(`^/([0-9]+(?:\.[0-9]+)?)/([-._a-zA-Z0-9]+)(?:/([^/]+)(?:/(.+))?)?$`)
	storageRE = regexp.MustCompile(`^([-_a-zA-Z0-9]+)(?:/([-_a-zA-Z0-9]+))?/?$`)
)

// Server is an in-memory mock of a Weave storage node. All mutable state is
// guarded by one coarse lock held for the duration of a request, so
// read-then-write sequences inside a handler are atomic per request.
type Server struct {
	mu       sync.Mutex
	store    *store.UserStore
	callback Callback
	log      *slog.Logger
	version  string
	// supported is the float value the path version segment must compare
	// equal to. Float comparison lets "1.1" and "1.10" both be accepted,
	// which simulates a node reassignment.
	supported float64

	httpServer *http.Server
	listener   net.Listener
	started    bool
}

// New builds a server speaking the given API version. A nil callback means no
// notifications; a nil logger discards nothing but uses the default handler.
func New(version string, cb Callback, log *slog.Logger) *Server {
	if version == "" {
		version = APIVersion
	}
	supported, err := strconv.ParseFloat(version, 64)
	if err != nil {
		panic("server: invalid API version " + version)
	}
	if cb == nil {
		cb = NopCallback{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store.NewUserStore(),
		callback:  cb,
		log:       log,
		version:   version,
		supported: supported,
	}
}

// Timestamp returns a server timestamp, with the server's 1/100s granularity.
func (s *Server) Timestamp() float64 {
	return timestamp.Now()
}

// ServeHTTP routes one request under the server lock.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log := s.log.With("request_id", reqID)
	log.Debug("handling request", "method", r.Method, "path", r.URL.Path)

	s.callback.OnRequest(w, r)

	if err := s.route(w, r, log); err != nil {
		var herr *httpError
		if errors.As(err, &herr) {
			s.respond(w, herr.code, herr.body, nil)
			return
		}
		log.Error("request failed", "error", err)
		s.respond(w, http.StatusInternalServerError, "", nil)
	}
}

// route validates the path grammar, the protocol version, and the user, then
// dispatches to the top-level handler. Validation order matters: an unknown
// user reads as 401 regardless of what follows the username segment.
func (s *Server) route(w http.ResponseWriter, r *http.Request, log *slog.Logger) error {
	parts := pathRE.FindStringSubmatch(r.URL.Path)
	if parts == nil {
		log.Debug("bad URL", "path", r.URL.Path)
		return errNotFound
	}
	version, username, first, rest := parts[1], parts[2], parts[3], parts[4]

	if v, err := strconv.ParseFloat(version, 64); err != nil || v != s.supported {
		log.Debug("unknown version", "version", version)
		return errNotFound
	}
	if !s.store.UserExists(username) {
		log.Debug("unknown user", "username", username)
		return errUnauthorized
	}

	switch first {
	case "storage", "":
		// A bare /version/username is the whole-storage endpoint.
		return s.handleStorage(w, r, username, rest, log)
	case "info":
		return s.handleInfo(w, r, username, rest, log)
	default:
		log.Debug("unknown top-level", "first", first)
		return errNotFound
	}
}

// respond writes the status line, any handler headers, the server timestamp
// header, and the body.
func (s *Server) respond(w http.ResponseWriter, code int, body string, headers map[string]string) {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Weave-Timestamp", timestamp.Format(timestamp.Now()))
	w.WriteHeader(code)
	if body != "" {
		if _, err := fmt.Fprint(w, body); err != nil {
			s.log.Error("writing response body", "error", err)
		}
	}
}

// Start begins listening on the given port; 0 picks a random free port.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Warn("server already started", "addr", s.listener.Addr())
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("starting sync server: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s}
	s.started = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("sync server stopped", "error", err)
		}
	}()
	return nil
}

// Port returns the bound port, or 0 when not started.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// BaseURI returns the root URL of the running server, trailing slash
// included.
func (s *Server) BaseURI() string {
	port := s.Port()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d/", port)
}

// Stop shuts the HTTP server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.log.Warn("server not running")
		return nil
	}
	s.started = false
	srv := s.httpServer
	s.mu.Unlock()
	return srv.Shutdown(ctx)
}

// Introspection API. These take the same lock as request handling, so test
// code may call them while the server is live.

// RegisterUser creates a user with an empty set of collections.
func (s *Server) RegisterUser(username, password string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.RegisterUser(username, password)
}

// UserExists reports whether the username is registered.
func (s *Server) UserExists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.UserExists(username)
}

// GetCollection returns a user's collection, or nil.
func (s *Server) GetCollection(username, collection string) *store.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.GetCollection(username, collection)
}

// CreateCollection creates a collection for the user, optionally seeded.
func (s *Server) CreateCollection(username, collection string, wbos map[string]*store.WBO) (*store.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.CreateCollection(username, collection, wbos)
}

// CreateContents seeds collections and records for a user.
func (s *Server) CreateContents(username string, contents map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.CreateContents(username, contents)
}

// InsertWBO stores a record in an existing collection of the user.
func (s *Server) InsertWBO(username, collection string, w *store.WBO) (*store.WBO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.InsertWBO(username, collection, w)
}

// DeleteCollections clears every collection for the user and returns the
// operation timestamp.
func (s *Server) DeleteCollections(username string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.DeleteCollections(username)
}

// Password returns the stored credential for a user.
func (s *Server) Password(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Password(username)
}

// User returns a bound view over one user's data. The view itself is not
// locked; use it from the single test goroutine driving the server.
func (s *Server) User(username string) *store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.User(username)
}
