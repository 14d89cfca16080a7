package storefake

import (
	"sync"

	"github.com/smartpc-cloud/desktop-auth/credstore"
)

var _ credstore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory Store for tests. Individual keys can be made to
// fail writes or removals to exercise write-path error handling.
type FakeStore struct {
	values      map[string]string
	failSets    map[string]bool
	failRemoves map[string]bool
	lock        sync.RWMutex
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values:      make(map[string]string),
		failSets:    make(map[string]bool),
		failRemoves: make(map[string]bool),
	}
}

// FailSet makes every subsequent Set of key report failure.
func (fs *FakeStore) FailSet(key string) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failSets[key] = true
}

// FailRemove makes every subsequent Remove of key report failure.
func (fs *FakeStore) FailRemove(key string) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failRemoves[key] = true
}

func (fs *FakeStore) Set(key, value string) bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.failSets[key] {
		return false
	}
	fs.values[key] = value
	return true
}

func (fs *FakeStore) Get(key string) (string, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	value, ok := fs.values[key]
	return value, ok
}

func (fs *FakeStore) Remove(key string) bool {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.failRemoves[key] {
		return false
	}
	delete(fs.values, key)
	return true
}

func (fs *FakeStore) Exists(key string) bool {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	_, ok := fs.values[key]
	return ok
}
