package server

import "net/http"

// Callback receives notifications for operations that are hard to verify by
// introspecting the store, such as deletions. Hooks run synchronously inside
// the mutating operation; OnItemDeleted fires once per record in a bulk
// delete, not once per request.
//
// Embed NopCallback and override the hooks you care about.
type Callback interface {
	// OnCollectionDeleted fires when a whole collection is dropped from a
	// user's map.
	OnCollectionDeleted(username, collection string)

	// OnItemDeleted fires for every record tombstoned through the wire
	// interface.
	OnItemDeleted(username, collection, id string)

	// OnRequest fires at the top of every request, before routing. Hooks may
	// inspect the request and set response headers, but must not write the
	// body or interfere with headers the server manages.
	OnRequest(w http.ResponseWriter, r *http.Request)
}

// NopCallback is a Callback that does nothing.
type NopCallback struct{}

func (NopCallback) OnCollectionDeleted(username, collection string) {}

func (NopCallback) OnItemDeleted(username, collection, id string) {}

func (NopCallback) OnRequest(w http.ResponseWriter, r *http.Request) {}
