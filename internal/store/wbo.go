package store

import (
	"encoding/json"
	"fmt"

	"github.com/dimitrije/weavemock/internal/timestamp"
	"github.com/dimitrije/weavemock/pkg/dto"
)

// WBO is a single versioned object (Weave Basic Object): an opaque payload
// plus a last-modified timestamp, addressed by an immutable ID.
//
// An empty Payload marks the object as deleted (a tombstone). The slot stays
// addressable by ID, which is distinct from a record that never existed.
type WBO struct {
	ID       string
	Payload  string
	Modified float64
}

// NewWBO builds a WBO. The payload may be a string, a []byte, or any
// JSON-marshalable value (which is stringified). A nil or empty payload
// leaves the object as an empty slot with no modified time. A zero modified
// value stamps the object with the current server time.
//
// An empty ID is a programming error and panics.
func NewWBO(id string, payload any, modified float64) *WBO {
	if id == "" {
		panic("store: no ID for WBO")
	}
	w := &WBO{ID: id}

	raw := stringifyPayload(payload)
	if raw == "" {
		return w
	}
	w.Payload = raw
	if modified == 0 {
		modified = timestamp.Now()
	}
	w.Modified = modified
	return w
}

func stringifyPayload(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case []byte:
		return string(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			panic(fmt.Sprintf("store: unmarshalable WBO payload: %v", err))
		}
		return string(b)
	}
}

// HasPayload reports whether the object is live. Tombstoned and never-set
// objects both report false.
func (w *WBO) HasPayload() bool {
	return w.Payload != ""
}

// Record returns the wire form of the object. Callers are responsible for
// mapping an absent payload to NotFound; Record itself does not fail.
func (w *WBO) Record() dto.Record {
	return dto.Record{ID: w.ID, Modified: w.Modified, Payload: w.Payload}
}

// Data unmarshals the payload into v. Convenience for tests that store JSON
// payloads.
func (w *WBO) Data(v any) error {
	return json.Unmarshal([]byte(w.Payload), v)
}

// Put replaces the payload in full from a PUT request body and refreshes the
// modified time. There is no partial update.
func (w *WBO) Put(raw []byte) error {
	var req dto.PutRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	w.Payload = req.Payload
	w.Modified = timestamp.Now()
	return nil
}

// Delete tombstones the object: payload and modified time are cleared but the
// slot itself remains.
func (w *WBO) Delete() {
	w.Payload = ""
	w.Modified = 0
}
