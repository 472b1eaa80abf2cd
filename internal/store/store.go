// Package store holds the in-memory data model of the mock sync server:
// versioned objects (WBOs), per-user named collections, and the user store
// that owns them.
//
// The store itself is not goroutine safe. The server serializes every request
// under one coarse lock, because handlers rely on read-then-write sequences
// being atomic per request.
package store

import (
	"errors"

	"github.com/dimitrije/weavemock/internal/timestamp"
)

// Sentinel errors for internal-API misuse. These are programming errors
// raised to callers of the store API, distinct from the wire-level 404/401
// the router produces.
var (
	ErrUserExists        = errors.New("user already exists")
	ErrUnknownUser       = errors.New("unknown user")
	ErrCollectionExists  = errors.New("collection already exists")
	ErrUnknownCollection = errors.New("unknown collection")
)

type userEntry struct {
	password    string
	collections map[string]*Collection
}

// UserStore maps usernames to their credentials and collections.
type UserStore struct {
	users map[string]*userEntry
}

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*userEntry)}
}

// RegisterUser creates a user with an empty collection map. Users are never
// created implicitly by a request.
func (s *UserStore) RegisterUser(username, password string) (*User, error) {
	if _, ok := s.users[username]; ok {
		return nil, ErrUserExists
	}
	s.users[username] = &userEntry{
		password:    password,
		collections: make(map[string]*Collection),
	}
	return s.User(username), nil
}

// UserExists reports whether the username is registered.
func (s *UserStore) UserExists(username string) bool {
	_, ok := s.users[username]
	return ok
}

// Password returns the stored credential for a user.
func (s *UserStore) Password(username string) (string, bool) {
	u, ok := s.users[username]
	if !ok {
		return "", false
	}
	return u.password, true
}

// GetCollection returns the named collection, or nil when the user or the
// collection does not exist. A nil result lets callers distinguish "never
// created" (which enumerates as empty on GET) from a present-but-empty
// collection.
func (s *UserStore) GetCollection(username, name string) *Collection {
	u, ok := s.users[username]
	if !ok {
		return nil
	}
	return u.collections[name]
}

// insertCollection wires a new collection in. Collections created through the
// store API accept new records on bulk POST.
func (s *UserStore) insertCollection(collections map[string]*Collection, name string, wbos map[string]*WBO) *Collection {
	coll := NewCollection(wbos, true, 0)
	collections[name] = coll
	return coll
}

// CreateCollection creates a named collection for the user, optionally seeded
// with records.
func (s *UserStore) CreateCollection(username, name string, wbos map[string]*WBO) (*Collection, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUnknownUser
	}
	if _, ok := u.collections[name]; ok {
		return nil, ErrCollectionExists
	}
	return s.insertCollection(u.collections, name, wbos), nil
}

// RemoveCollection drops the collection entry from the user's map entirely.
// No-op when absent.
func (s *UserStore) RemoveCollection(username, name string) {
	if u, ok := s.users[username]; ok {
		delete(u.collections, name)
	}
}

// CollectionTimestamps returns the modified time of every collection the user
// owns, keyed by name. This is the body of info/collections.
func (s *UserStore) CollectionTimestamps(username string) map[string]float64 {
	out := map[string]float64{}
	u, ok := s.users[username]
	if !ok {
		return out
	}
	for name, coll := range u.collections {
		out[name] = coll.Timestamp
	}
	return out
}

// CreateContents seeds collections and records from a nested map:
//
//	{meta: {global: {...}}, bookmarks: {}}
//
// Existing collections are reused; existing WBOs are updated to the new
// payload.
func (s *UserStore) CreateContents(username string, contents map[string]map[string]any) error {
	u, ok := s.users[username]
	if !ok {
		return ErrUnknownUser
	}
	for name, records := range contents {
		coll := u.collections[name]
		if coll == nil {
			coll = s.insertCollection(u.collections, name, nil)
		}
		for id, payload := range records {
			coll.Insert(id, payload)
		}
	}
	return nil
}

// InsertWBO stores a record in an existing collection.
func (s *UserStore) InsertWBO(username, collection string, w *WBO) (*WBO, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUnknownUser
	}
	coll, ok := u.collections[collection]
	if !ok {
		return nil, ErrUnknownCollection
	}
	return coll.InsertWBO(w), nil
}

// DeleteCollections tombstones every record in every collection the user
// owns, clears the user's collection map, and returns a fresh timestamp for
// the bulk operation.
func (s *UserStore) DeleteCollections(username string) (float64, error) {
	u, ok := s.users[username]
	if !ok {
		return 0, ErrUnknownUser
	}
	for _, coll := range u.collections {
		coll.Delete(QueryOptions{})
	}
	u.collections = make(map[string]*Collection)
	return timestamp.Now(), nil
}

// User returns a view bound to one username, so test code can abbreviate
// chains like store.User("john").Collection("bookmarks").WBO("x").
func (s *UserStore) User(username string) *User {
	return &User{store: s, name: username}
}

// User is a bound view over one user's data in a UserStore.
type User struct {
	store *UserStore
	name  string
}

// Name returns the username the view is bound to.
func (u *User) Name() string { return u.name }

// Collection returns the named collection, or nil.
func (u *User) Collection(name string) *Collection {
	return u.store.GetCollection(u.name, name)
}

// CreateCollection creates a collection for the bound user.
func (u *User) CreateCollection(name string, wbos map[string]*WBO) (*Collection, error) {
	return u.store.CreateCollection(u.name, name, wbos)
}

// CreateContents seeds collections and records for the bound user.
func (u *User) CreateContents(contents map[string]map[string]any) error {
	return u.store.CreateContents(u.name, contents)
}

// DeleteCollections clears every collection for the bound user.
func (u *User) DeleteCollections() (float64, error) {
	return u.store.DeleteCollections(u.name)
}

// Modified returns the named collection's timestamp, or 0 when absent.
func (u *User) Modified(name string) float64 {
	coll := u.Collection(name)
	if coll == nil {
		return 0
	}
	return coll.Timestamp
}
