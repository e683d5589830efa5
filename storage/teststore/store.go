// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package teststore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tessera-io/tessera/storage"
)

// ErrForced is returned when error injection is active.
var ErrForced = errors.New("forced error")

// item is one key/value pair in the sorted backing slice.
type item struct {
	key   storage.Key
	value storage.Value
}

// Client implements an in-memory key value store intended for tests.
type Client struct {
	mu    sync.Mutex
	items []item

	CallCount struct {
		Get            int
		GetAll         int
		Put            int
		Delete         int
		List           int
		CompareAndSwap int
		Close          int
	}

	// forcedErrors is the number of upcoming calls that fail with
	// ErrForced.
	forcedErrors int
}

// New creates a new in-memory key-value store.
func New() *Client { return &Client{} }

// ForceError makes the next n calls fail with ErrForced.
func (store *Client) ForceError(n int) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.forcedErrors = n
}

func (store *Client) forcedError() bool {
	if store.forcedErrors > 0 {
		store.forcedErrors--
		return true
	}
	return false
}

// indexOf finds the index of key or where it would be inserted.
func (store *Client) indexOf(key storage.Key) (int, bool) {
	i := sort.Search(len(store.items), func(k int) bool {
		return !store.items[k].key.Less(key)
	})
	if i >= len(store.items) {
		return i, false
	}
	return i, store.items[i].key.Equal(key)
}

func (store *Client) put(key storage.Key, value storage.Value) {
	keyIndex, found := store.indexOf(key)
	if found {
		store.items[keyIndex].value = storage.CloneValue(value)
		return
	}
	store.items = append(store.items, item{})
	copy(store.items[keyIndex+1:], store.items[keyIndex:])
	store.items[keyIndex] = item{
		key:   storage.CloneKey(key),
		value: storage.CloneValue(value),
	}
}

func (store *Client) delete(keyIndex int) {
	store.items = append(store.items[:keyIndex], store.items[keyIndex+1:]...)
}

// Put adds a value to the store.
func (store *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Put++
	if store.forcedError() {
		return ErrForced
	}
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	store.put(key, value)
	return nil
}

// Get gets a value from the store.
func (store *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Get++
	if store.forcedError() {
		return nil, ErrForced
	}
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}
	keyIndex, found := store.indexOf(key)
	if !found {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return storage.CloneValue(store.items[keyIndex].value), nil
}

// GetAll gets all values from the store, nil for missing keys.
func (store *Client) GetAll(ctx context.Context, keys storage.Keys) ([]storage.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.GetAll++
	if store.forcedError() {
		return nil, ErrForced
	}
	values := make([]storage.Value, 0, len(keys))
	for _, key := range keys {
		keyIndex, found := store.indexOf(key)
		if !found {
			values = append(values, nil)
			continue
		}
		values = append(values, storage.CloneValue(store.items[keyIndex].value))
	}
	return values, nil
}

// Delete deletes a key and its value.
func (store *Client) Delete(ctx context.Context, key storage.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Delete++
	if store.forcedError() {
		return ErrForced
	}
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	keyIndex, found := store.indexOf(key)
	if !found {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	store.delete(keyIndex)
	return nil
}

// List returns up to limit keys at or after first.
func (store *Client) List(ctx context.Context, first storage.Key, limit int) (storage.Keys, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.List++
	if store.forcedError() {
		return nil, ErrForced
	}
	firstIndex, _ := store.indexOf(first)
	var keys storage.Keys
	for i := firstIndex; i < len(store.items); i++ {
		if limit > 0 && len(keys) >= limit {
			break
		}
		keys = append(keys, storage.CloneKey(store.items[i].key))
	}
	return keys, nil
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (store *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.CompareAndSwap++
	if store.forcedError() {
		return ErrForced
	}
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if !found {
		if oldValue != nil {
			return storage.ErrKeyNotFound.New("%q", key)
		}
		if newValue == nil {
			return nil
		}
		store.put(key, newValue)
		return nil
	}

	if oldValue == nil {
		return storage.ErrValueChanged.New("%q", key)
	}
	if !store.items[keyIndex].value.Equal(oldValue) {
		return storage.ErrValueChanged.New("%q", key)
	}
	if newValue == nil {
		store.delete(keyIndex)
		return nil
	}
	store.items[keyIndex].value = storage.CloneValue(newValue)
	return nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Close++
	return nil
}
