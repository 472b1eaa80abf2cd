package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dimitrije/weavemock/internal/store"
	"github.com/dimitrije/weavemock/internal/timestamp"
)

// handleStorage serves /$version/$user/storage and everything below it.
// rest is either empty (whole-storage operation) or collection(/id)?.
func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request, username, rest string, log *slog.Logger) error {
	if rest == "" {
		return s.handleWholeStorage(w, r, username, log)
	}

	match := storageRE.FindStringSubmatch(rest)
	if match == nil {
		log.Warn("unknown storage operation", "rest", rest)
		return errNotFound
	}
	collection, wboID := match[1], match[2]
	coll := s.store.GetCollection(username, collection)
	opts := parseQueryOptions(r.URL.RawQuery)

	switch r.Method {
	case http.MethodGet:
		return s.storageGet(w, coll, wboID, opts)
	case http.MethodDelete:
		return s.storageDelete(w, r, username, collection, coll, wboID, opts, log)
	case http.MethodPost, http.MethodPut:
		return s.storageWrite(w, r, username, collection, coll, wboID, log)
	default:
		panic(fmt.Sprintf("server: request method %s not implemented", r.Method))
	}
}

// handleWholeStorage serves the whole-storage endpoint: DELETE drops every
// collection the user owns; anything else is 405.
func (s *Server) handleWholeStorage(w http.ResponseWriter, r *http.Request, username string, log *slog.Logger) error {
	log.Debug("top-level storage request", "method", r.Method)

	if r.Method != http.MethodDelete {
		s.respond(w, http.StatusMethodNotAllowed, "[]", map[string]string{"Allow": "DELETE"})
		return nil
	}

	ts, err := s.store.DeleteCollections(username)
	if err != nil {
		return err
	}
	s.respond(w, http.StatusOK, timestamp.Format(ts), nil)
	return nil
}

func (s *Server) storageGet(w http.ResponseWriter, coll *store.Collection, wboID string, opts store.QueryOptions) error {
	if coll == nil {
		if wboID != "" {
			return errNotFound
		}
		// A collection that was never created enumerates as empty, not
		// missing.
		s.respond(w, http.StatusOK, "[]", nil)
		return nil
	}
	if wboID == "" {
		body, recordCount := coll.Get(opts)
		s.respond(w, http.StatusOK, body, map[string]string{
			"X-Weave-Records": fmt.Sprintf("%d", recordCount),
		})
		return nil
	}

	wbo := coll.WBO(wboID)
	if wbo == nil || !wbo.HasPayload() {
		return errNotFound
	}
	b, err := json.Marshal(wbo.Record())
	if err != nil {
		return err
	}
	s.respond(w, http.StatusOK, string(b), nil)
	return nil
}

func (s *Server) storageDelete(w http.ResponseWriter, r *http.Request, username, collection string, coll *store.Collection, wboID string, opts store.QueryOptions, log *slog.Logger) error {
	if coll == nil {
		// Idempotent no-op.
		s.respond(w, http.StatusOK, "{}", nil)
		return nil
	}

	if wboID != "" {
		if wbo := coll.WBO(wboID); wbo != nil {
			wbo.Delete()
			s.callback.OnItemDeleted(username, collection, wboID)
		}
		s.respond(w, http.StatusOK, "{}", nil)
		return nil
	}

	deleted := coll.Delete(opts)
	ts := timestamp.Now()
	coll.Timestamp = ts
	s.respond(w, http.StatusOK, timestamp.Format(ts), nil)

	// DELETE storage/foobar drops the whole collection, while
	// DELETE storage/foobar?ids=foo,baz only tombstones those records. The
	// raw query string is what distinguishes the two.
	if !strings.Contains(r.URL.RawQuery, "ids=") {
		log.Debug("deleting entire collection", "collection", collection)
		s.store.RemoveCollection(username, collection)
		s.callback.OnCollectionDeleted(username, collection)
	}
	for _, id := range deleted {
		s.callback.OnItemDeleted(username, collection, id)
	}
	return nil
}

func (s *Server) storageWrite(w http.ResponseWriter, r *http.Request, username, collection string, coll *store.Collection, wboID string, log *slog.Logger) error {
	if coll == nil {
		var err error
		coll, err = s.store.CreateCollection(username, collection, nil)
		if err != nil {
			return err
		}
		// Auto-created collections do not accept unknown records in bulk
		// POSTs; single-record writes below create records regardless.
		coll.AcceptNew = false
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	if wboID != "" {
		wbo := coll.WBO(wboID)
		if wbo == nil {
			log.Debug("creating WBO", "collection", collection, "id", wboID)
			wbo = coll.Insert(wboID, nil)
		}
		if err := wbo.Put(raw); err != nil {
			return err
		}
		coll.Timestamp = wbo.Modified
		s.respond(w, http.StatusOK, timestamp.Format(wbo.Modified), map[string]string{
			"Content-Type": "application/json",
		})
		return nil
	}

	res, err := coll.Post(raw)
	if err != nil {
		return err
	}
	coll.Timestamp = res.Modified
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	s.respond(w, http.StatusOK, string(b), map[string]string{
		"Content-Type": "application/json",
	})
	return nil
}
