package store

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/dimitrije/weavemock/internal/timestamp"
	"github.com/dimitrije/weavemock/pkg/dto"
)

// FailedNoWBO is the per-entry failure reason reported when a bulk POST
// references an unknown record and the collection does not accept new ones.
const FailedNoWBO = "no wbo configured"

// QueryOptions are the recognized query-string parameters of collection-level
// operations. Zero values mean "not specified". Unrecognized keys are carried
// in Extra and ignored by the built-in handlers.
type QueryOptions struct {
	IDs   []string
	Newer float64
	Limit int
	Full  bool
	Extra map[string]string
}

// Filter is a predicate over a record and its ID, used to narrow enumeration.
type Filter func(id string, wbo *WBO) bool

// Collection is a named group of WBOs belonging to one user.
//
// The collection tracks its own modified timestamp: an empty collection still
// has a modified time, so it cannot be derived from the contained records.
type Collection struct {
	wbos map[string]*WBO

	// AcceptNew controls whether bulk POSTs may create records on the fly.
	AcceptNew bool

	// Timestamp is the collection-level modified time. It never decreases.
	Timestamp float64
}

// NewCollection builds a collection around an existing record map (may be
// nil). A zero ts stamps the collection with the current server time.
func NewCollection(wbos map[string]*WBO, acceptNew bool, ts float64) *Collection {
	if wbos == nil {
		wbos = make(map[string]*WBO)
	}
	if ts == 0 {
		ts = timestamp.Now()
	}
	return &Collection{wbos: wbos, AcceptNew: acceptNew, Timestamp: ts}
}

// sortedIDs returns every slot ID in ascending order, tombstones included.
// Enumeration order must be deterministic for limit truncation to be
// testable.
func (c *Collection) sortedIDs() []string {
	ids := make([]string, 0, len(c.wbos))
	for id := range c.wbos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Keys returns the IDs of all live records, optionally narrowed by a filter.
// Tombstones are excluded by construction.
func (c *Collection) Keys(filter Filter) []string {
	keys := []string{}
	for _, id := range c.sortedIDs() {
		w := c.wbos[id]
		if w.HasPayload() && (filter == nil || filter(id, w)) {
			keys = append(keys, id)
		}
	}
	return keys
}

// WBOs returns all live records in ID order. The optional filter runs on the
// record itself, so it can inspect fields beyond id and modified.
func (c *Collection) WBOs(filter func(*WBO) bool) []*WBO {
	out := []*WBO{}
	for _, id := range c.sortedIDs() {
		w := c.wbos[id]
		if w.HasPayload() && (filter == nil || filter(w)) {
			out = append(out, w)
		}
	}
	return out
}

// Payloads returns the parsed ciphertext of every live record. It assumes the
// conventional crypto envelope: the payload is a JSON object whose
// "ciphertext" field is itself a JSON document.
func (c *Collection) Payloads() ([]any, error) {
	out := []any{}
	for _, w := range c.WBOs(nil) {
		var envelope struct {
			Ciphertext string `json:"ciphertext"`
		}
		if err := json.Unmarshal([]byte(w.Payload), &envelope); err != nil {
			return nil, err
		}
		var inner any
		if err := json.Unmarshal([]byte(envelope.Ciphertext), &inner); err != nil {
			return nil, err
		}
		out = append(out, inner)
	}
	return out, nil
}

// WBO returns the record slot for id, or nil. Tombstoned slots are returned.
func (c *Collection) WBO(id string) *WBO {
	return c.wbos[id]
}

// Payload returns the payload of an existing record. Panics on unknown IDs;
// it is a test convenience, not a guarded accessor.
func (c *Collection) Payload(id string) string {
	return c.wbos[id].Payload
}

// InsertWBO stores the record under its ID, replacing any previous slot.
func (c *Collection) InsertWBO(w *WBO) *WBO {
	c.wbos[w.ID] = w
	return w
}

// Insert constructs a record from the payload and stores it. An optional
// modified time may be given; otherwise the current server time is used.
func (c *Collection) Insert(id string, payload any, modified ...float64) *WBO {
	var ts float64
	if len(modified) > 0 {
		ts = modified[0]
	}
	return c.InsertWBO(NewWBO(id, payload, ts))
}

// Remove deletes the record slot entirely. Unlike Delete, this is a full
// removal from the mapping, not a tombstone.
func (c *Collection) Remove(id string) {
	delete(c.wbos, id)
}

// MatchesQuery reports whether a record is in the result set for the given
// options: it must be live, pass the ids filter when one is given, and have a
// modified time strictly greater than any newer bound.
func (c *Collection) MatchesQuery(w *WBO, opts QueryOptions) bool {
	if !w.HasPayload() {
		return false
	}
	if opts.IDs != nil && !slices.Contains(opts.IDs, w.ID) {
		return false
	}
	if opts.Newer != 0 && w.Modified <= opts.Newer {
		return false
	}
	return true
}

// Count returns the number of records with a modified time that match the
// query.
func (c *Collection) Count(opts QueryOptions) int {
	n := 0
	for _, w := range c.wbos {
		if w.Modified != 0 && c.MatchesQuery(w, opts) {
			n++
		}
	}
	return n
}

// Get runs a collection-level read. In full mode the body is each matching
// record JSON-encoded in isolation, newline-joined with a trailing newline.
// Otherwise it is a JSON array of matching IDs. Both modes truncate to
// opts.Limit entries when a limit is set; recordCount is always the matched
// count before truncation.
func (c *Collection) Get(opts QueryOptions) (body string, recordCount int) {
	if opts.Full {
		lines := []string{}
		for _, id := range c.sortedIDs() {
			w := c.wbos[id]
			if w.Modified == 0 || !c.MatchesQuery(w, opts) {
				continue
			}
			b, err := json.Marshal(w.Record())
			if err != nil {
				panic("store: unmarshalable WBO record: " + err.Error())
			}
			lines = append(lines, string(b))
		}
		recordCount = len(lines)
		if opts.Limit > 0 && len(lines) > opts.Limit {
			lines = lines[:opts.Limit]
		}
		return strings.Join(lines, "\n") + "\n", recordCount
	}

	ids := []string{}
	for _, id := range c.sortedIDs() {
		if c.MatchesQuery(c.wbos[id], opts) {
			ids = append(ids, id)
		}
	}
	recordCount = len(ids)
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	b, err := json.Marshal(ids)
	if err != nil {
		panic("store: unmarshalable ID list: " + err.Error())
	}
	return string(b), recordCount
}

// Post applies a bulk write. The body may be a JSON array of entries or an
// object keyed arbitrarily; object entries are applied in key order. Entries
// for existing records update them; unknown records are created only when the
// collection accepts new ones, otherwise the entry lands in Failed. A single
// fresh timestamp is applied to every successful entry.
func (c *Collection) Post(raw []byte) (dto.BatchResult, error) {
	entries, err := decodeBatch(raw)
	if err != nil {
		return dto.BatchResult{}, err
	}

	res := dto.BatchResult{
		Modified: timestamp.Now(),
		Success:  []string{},
		Failed:   map[string]string{},
	}
	for _, entry := range entries {
		w := c.wbos[entry.ID]
		if w == nil && c.AcceptNew {
			w = &WBO{ID: entry.ID}
			c.InsertWBO(w)
		}
		if w == nil {
			res.Failed[entry.ID] = FailedNoWBO
			continue
		}
		w.Payload = entry.Payload
		w.Modified = res.Modified
		res.Success = append(res.Success, entry.ID)
	}
	return res, nil
}

func decodeBatch(raw []byte) ([]dto.BatchEntry, error) {
	var entries []dto.BatchEntry
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}

	var keyed map[string]dto.BatchEntry
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entry := keyed[k]
		if entry.ID == "" {
			entry.ID = k
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete tombstones every record matching the query and returns the deleted
// IDs. Slots are never removed at this layer; dropping a whole collection is
// the router's job.
func (c *Collection) Delete(opts QueryOptions) []string {
	deleted := []string{}
	for _, id := range c.sortedIDs() {
		w := c.wbos[id]
		if c.MatchesQuery(w, opts) {
			deleted = append(deleted, id)
			w.Delete()
		}
	}
	return deleted
}
