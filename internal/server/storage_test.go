package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimitrije/weavemock/internal/store"
	"github.com/dimitrije/weavemock/pkg/dto"
)

func TestStorage_GetNeverCreatedCollection(t *testing.T) {
	srv := newTestServer(t, nil)

	// "Never created" enumerates as empty, not missing.
	rec := do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	// But a single-record lookup in it is a plain 404.
	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorage_PutGetRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	before := srv.Timestamp()

	rec := do(t, srv, http.MethodPut, "/1.1/johndoe/storage/bookmarks/abc", `{"payload":"ciphertext"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	modified, err := strconv.ParseFloat(rec.Body.String(), 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, modified, before)

	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var record dto.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "abc", record.ID)
	assert.Equal(t, "ciphertext", record.Payload)
	assert.Equal(t, modified, record.Modified)

	// The PUT also created the collection and moved its timestamp.
	coll := srv.GetCollection("johndoe", "bookmarks")
	require.NotNil(t, coll)
	assert.Equal(t, modified, coll.Timestamp)
}

func TestStorage_PostSingleRecordBehavesLikePut(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/1.1/johndoe/storage/bookmarks/abc", `{"payload":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStorage_DeleteSingleRecordIdempotent(t *testing.T) {
	cb := &recordingCallback{}
	srv := newTestServer(t, cb)
	require.NoError(t, srv.CreateContents("johndoe", map[string]map[string]any{
		"bookmarks": {"abc": "x", "def": "y"},
	}))

	rec := do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}", rec.Body.String())
	assert.Equal(t, []string{"johndoe/bookmarks/abc"}, cb.itemsDeleted)

	// The slot remains as a tombstone and reads as 404.
	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting an already-tombstoned or unknown record stays 200 {} and
	// does not change the live count.
	coll := srv.GetCollection("johndoe", "bookmarks")
	countBefore := coll.Count(store.QueryOptions{})

	rec = do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}", rec.Body.String())

	rec = do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks/nothere", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}", rec.Body.String())

	assert.Equal(t, countBefore, coll.Count(store.QueryOptions{}))
}

func TestStorage_DeleteNeverCreatedCollection(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{}", rec.Body.String())
}

func TestStorage_DeleteWholeCollectionDropsEntry(t *testing.T) {
	cb := &recordingCallback{}
	srv := newTestServer(t, cb)
	require.NoError(t, srv.CreateContents("johndoe", map[string]map[string]any{
		"bookmarks": {"a": "x", "b": "y"},
		"history":   {"c": "z"},
	}))

	rec := do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := strconv.ParseFloat(rec.Body.String(), 64)
	require.NoError(t, err)

	assert.Equal(t, []string{"johndoe/bookmarks"}, cb.collectionsDeleted)
	assert.ElementsMatch(t, []string{"johndoe/bookmarks/a", "johndoe/bookmarks/b"}, cb.itemsDeleted)

	// The entry is gone from the user's map entirely.
	assert.Nil(t, srv.GetCollection("johndoe", "bookmarks"))

	// "Deleted" and "never existed" both enumerate as empty.
	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())

	var info map[string]float64
	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/info/collections", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.NotContains(t, info, "bookmarks")
	assert.Contains(t, info, "history")
}

func TestStorage_DeleteByIDsKeepsCollection(t *testing.T) {
	cb := &recordingCallback{}
	srv := newTestServer(t, cb)
	require.NoError(t, srv.CreateContents("johndoe", map[string]map[string]any{
		"bookmarks": {"a": "x", "b": "y", "c": "z"},
	}))

	rec := do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks?ids=a,b", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, cb.collectionsDeleted)
	assert.Equal(t, []string{"johndoe/bookmarks/a", "johndoe/bookmarks/b"}, cb.itemsDeleted)

	coll := srv.GetCollection("johndoe", "bookmarks")
	require.NotNil(t, coll)
	assert.Equal(t, []string{"c"}, coll.Keys(nil))

	// Tombstones, not removed slots.
	require.NotNil(t, coll.WBO("a"))
	assert.False(t, coll.WBO("a").HasPayload())
}

func TestStorage_CollectionGet_IDsAndRecordsHeader(t *testing.T) {
	srv := newTestServer(t, nil)
	coll, err := srv.CreateCollection("johndoe", "bookmarks", nil)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		coll.Insert(id, "payload-"+id)
	}

	rec := do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, "5", rec.Header().Get("X-Weave-Records"))
}

func TestStorage_CollectionGet_LimitTruncatesButCountsAll(t *testing.T) {
	srv := newTestServer(t, nil)
	coll, err := srv.CreateCollection("johndoe", "bookmarks", nil)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		coll.Insert(id, "payload-"+id)
	}

	rec := do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	assert.Equal(t, []string{"a", "b"}, ids)
	// The records header reports the matched count before truncation.
	assert.Equal(t, "5", rec.Header().Get("X-Weave-Records"))
}

func TestStorage_CollectionGet_FullMode(t *testing.T) {
	srv := newTestServer(t, nil)
	coll, err := srv.CreateCollection("johndoe", "bookmarks", nil)
	require.NoError(t, err)
	coll.Insert("a", "pa", 10)
	coll.Insert("b", "pb", 20)

	rec := do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks?full=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.True(t, strings.HasSuffix(body, "\n"))
	assert.Equal(t, "2", rec.Header().Get("X-Weave-Records"))

	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"a","modified":10,"payload":"pa"}`, lines[0])
	assert.JSONEq(t, `{"id":"b","modified":20,"payload":"pb"}`, lines[1])
}

func TestStorage_CollectionGet_NewerFilter(t *testing.T) {
	srv := newTestServer(t, nil)
	coll, err := srv.CreateCollection("johndoe", "bookmarks", nil)
	require.NoError(t, err)
	coll.Insert("a", "pa", 10)
	coll.Insert("b", "pb", 20)
	coll.Insert("c", "pc", 30)

	rec := do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks?newer=20", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	// Strictly greater: modified == 20 is excluded.
	assert.Equal(t, []string{"c"}, ids)
}

func TestStorage_BulkPost_Batch(t *testing.T) {
	srv := newTestServer(t, nil)
	coll, err := srv.CreateCollection("johndoe", "bookmarks", nil)
	require.NoError(t, err)
	coll.AcceptNew = false
	coll.Insert("A", "x")

	rec := do(t, srv, http.MethodPost, "/1.1/johndoe/storage/bookmarks",
		`[{"id":"A","payload":"y"},{"id":"B","payload":"z"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res dto.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"A"}, res.Success)
	assert.Equal(t, map[string]string{"B": "no wbo configured"}, res.Failed)

	assert.Equal(t, "y", coll.Payload("A"))
	assert.Nil(t, coll.WBO("B"))
	assert.Equal(t, res.Modified, coll.Timestamp)
}

func TestStorage_BulkPost_AutoCreatedCollectionRejectsNewRecords(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/1.1/johndoe/storage/fresh",
		`[{"id":"A","payload":"x"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res dto.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Success)
	assert.Equal(t, map[string]string{"A": "no wbo configured"}, res.Failed)

	// The collection itself was created by the POST.
	require.NotNil(t, srv.GetCollection("johndoe", "fresh"))
}

func TestStorage_BulkPost_SeededCollectionAcceptsNewRecords(t *testing.T) {
	srv := newTestServer(t, nil)
	require.NoError(t, srv.CreateContents("johndoe", map[string]map[string]any{
		"bookmarks": {},
	}))

	rec := do(t, srv, http.MethodPost, "/1.1/johndoe/storage/bookmarks",
		`[{"id":"A","payload":"x"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res dto.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"A"}, res.Success)
	assert.Empty(t, res.Failed)
}

func TestStorage_PutRevivesTombstone(t *testing.T) {
	srv := newTestServer(t, nil)
	require.NoError(t, srv.CreateContents("johndoe", map[string]map[string]any{
		"bookmarks": {"abc": "original"},
	}))

	rec := do(t, srv, http.MethodDelete, "/1.1/johndoe/storage/bookmarks/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPut, "/1.1/johndoe/storage/bookmarks/abc", `{"payload":"revived"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bookmarks/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var record dto.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "revived", record.Payload)
}

func TestStorage_UnknownStorageOperation(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/1.1/johndoe/storage/bad%20name", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
