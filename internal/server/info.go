package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// handleInfo serves /$version/$user/info/$op.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request, username, rest string, log *slog.Logger) error {
	if r.Method != http.MethodGet {
		panic(fmt.Sprintf("server: non-GET on info/%s", rest))
	}

	switch rest {
	case "collections":
		body, err := json.Marshal(s.store.CollectionTimestamps(username))
		if err != nil {
			return err
		}
		log.Debug("info/collections", "body", string(body))
		s.respond(w, http.StatusOK, string(body), map[string]string{
			"Content-Type": "application/json",
		})
		return nil
	case "collection_usage", "collection_counts", "quota":
		// Intentionally unimplemented.
		s.respond(w, http.StatusOK, "TODO", nil)
		return nil
	default:
		log.Warn("unknown info operation", "rest", rest)
		return errNotFound
	}
}
