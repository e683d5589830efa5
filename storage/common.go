// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package storage defines the abstract store the catalog engine requires:
// durable write-once records plus compare-and-swap on a single key.
package storage

import (
	"bytes"
	"context"

	"github.com/zeebo/errs"
)

var (
	// ErrKeyNotFound is returned when a key is not found.
	ErrKeyNotFound = errs.Class("key not found")
	// ErrEmptyKey is returned when an empty key is passed.
	ErrEmptyKey = errs.Class("empty key")
	// ErrValueChanged is returned when the current value of the key does
	// not match the expected value during CompareAndSwap.
	ErrValueChanged = errs.Class("value changed")
)

// Key is the type for the keys in a KeyValueStore.
type Key []byte

// Value is the type for the values in a KeyValueStore.
type Value []byte

// Keys is a slice of keys.
type Keys []Key

// KeyValueStore describes the key/value stores the engine can run on,
// like boltdb and redis.
//
// Values written through Put are never rewritten by the engine; the
// contended keys (the global pointer and the repository description) are
// updated exclusively through CompareAndSwap.
type KeyValueStore interface {
	// Put adds a value to the provided key, returning an error on failure.
	Put(ctx context.Context, key Key, value Value) error
	// Get looks up the provided key and returns its value, or
	// ErrKeyNotFound.
	Get(ctx context.Context, key Key) (Value, error)
	// GetAll returns the values for the provided keys, in the same order.
	// Missing keys yield nil values.
	GetAll(ctx context.Context, keys Keys) ([]Value, error)
	// Delete deletes the key and its value.
	Delete(ctx context.Context, key Key) error
	// List returns up to limit keys at or after first, in lexicographic
	// order. A zero limit means no bound.
	List(ctx context.Context, first Key, limit int) (Keys, error)
	// CompareAndSwap atomically compares and swaps oldValue with newValue.
	// A nil oldValue means the key must not exist yet; a nil newValue
	// deletes the key. Returns ErrValueChanged when the current value does
	// not match oldValue, and ErrKeyNotFound when oldValue is non-nil and
	// the key does not exist.
	CompareAndSwap(ctx context.Context, key Key, oldValue, newValue Value) error
	// Close closes the store.
	Close() error
}

// IsZero returns true if the key is empty.
func (key Key) IsZero() bool { return len(key) == 0 }

// IsZero returns true if the value is empty.
func (value Value) IsZero() bool { return len(value) == 0 }

// Equal compares keys byte-wise.
func (key Key) Equal(other Key) bool { return bytes.Equal(key, other) }

// Equal compares values byte-wise.
func (value Value) Equal(other Value) bool { return bytes.Equal(value, other) }

// Less compares keys lexicographically.
func (key Key) Less(other Key) bool { return bytes.Compare(key, other) < 0 }

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }

// Strings returns the keys as strings.
func (keys Keys) Strings() []string {
	strs := make([]string, 0, len(keys))
	for _, key := range keys {
		strs = append(strs, string(key))
	}
	return strs
}

// CloneKey creates a copy of the key.
func CloneKey(key Key) Key { return append(Key{}, key...) }

// CloneValue creates a copy of the value.
func CloneValue(value Value) Value { return append(Value{}, value...) }

// ListPrefix returns all keys with the given prefix, paging through the
// store with List.
func ListPrefix(ctx context.Context, store KeyValueStore, prefix Key, pageSize int) (Keys, error) {
	var all Keys
	first := CloneKey(prefix)
	for {
		page, err := store.List(ctx, first, pageSize)
		if err != nil {
			return nil, err
		}
		done := true
		for _, key := range page {
			if !bytes.HasPrefix(key, prefix) {
				return all, nil
			}
			all = append(all, key)
		}
		if len(page) == pageSize && pageSize > 0 {
			last := page[len(page)-1]
			first = append(CloneKey(last), 0)
			done = false
		}
		if done {
			return all, nil
		}
	}
}
