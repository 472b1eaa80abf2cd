package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dimitrije/weavemock/internal/server"
)

// NewSyncServer builds a sync server with a discarding logger. A nil callback
// means no notifications.
func NewSyncServer(t *testing.T, cb server.Callback) *server.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return server.New(server.APIVersion, cb, logger)
}

// ServerForUsers builds a sync server, registers every user in users
// (username -> password), and seeds each with the same contents
// (collection -> id -> payload). The server is not started; drive it through
// an HTTPTestClient or call Start yourself.
func ServerForUsers(t *testing.T, users map[string]string, contents map[string]map[string]any, cb server.Callback) *server.Server {
	t.Helper()
	srv := NewSyncServer(t, cb)
	for username, password := range users {
		if _, err := srv.RegisterUser(username, password); err != nil {
			t.Fatalf("failed to register user %s: %v", username, err)
		}
		if contents != nil {
			if err := srv.CreateContents(username, contents); err != nil {
				t.Fatalf("failed to seed contents for %s: %v", username, err)
			}
		}
	}
	return srv
}

// SeedMetaGlobal gives the user a meta/global record with an empty payload
// object, the way sync clients expect a freshly provisioned node to look.
func SeedMetaGlobal(t *testing.T, srv *server.Server, username string) {
	t.Helper()
	err := srv.CreateContents(username, map[string]map[string]any{
		"meta": {"global": map[string]any{}},
	})
	if err != nil {
		t.Fatalf("failed to seed meta/global for %s: %v", username, err)
	}
}
