// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package boltdb

import (
	"bytes"
	"context"
	"time"

	"github.com/boltdb/bolt"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/tessera-io/tessera/storage"
)

var (
	mon = monkit.Package()

	// Error is the class for boltdb errors.
	Error = errs.Class("boltdb")
)

var defaultTimeout = 1 * time.Second

const (
	// fileMode sets permissions so only the owner can read and write.
	fileMode = 0600
)

// Client is the storage interface for the Bolt database.
type Client struct {
	db     *bolt.DB
	Path   string
	Bucket []byte
}

// New instantiates a new BoltDB client given a file path and bucket name.
func New(path, bucket string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &Client{
		db:     db,
		Path:   path,
		Bucket: []byte(bucket),
	}, nil
}

// Close closes a BoltDB client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

func (client *Client) update(fn func(*bolt.Bucket) error) error {
	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	}))
}

func (client *Client) view(fn func(*bolt.Bucket) error) error {
	return Error.Wrap(client.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	}))
}

// Put adds a key/value to the bucket.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return client.update(func(bucket *bolt.Bucket) error {
		return bucket.Put(key, value)
	})
}

// Get looks up the provided key and returns its value.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}
	var value storage.Value
	err = client.view(func(bucket *bolt.Bucket) error {
		data := bucket.Get(key)
		if len(data) == 0 {
			return storage.ErrKeyNotFound.New("%q", key)
		}
		value = storage.CloneValue(storage.Value(data))
		return nil
	})
	if storage.ErrKeyNotFound.Has(err) {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return value, err
}

// GetAll finds all values for the provided keys, nil for missing keys.
func (client *Client) GetAll(ctx context.Context, keys storage.Keys) (_ []storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	values := make([]storage.Value, 0, len(keys))
	err = client.view(func(bucket *bolt.Bucket) error {
		for _, key := range keys {
			data := bucket.Get(key)
			if len(data) == 0 {
				values = append(values, nil)
				continue
			}
			values = append(values, storage.CloneValue(storage.Value(data)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Delete deletes a key/value pair from the bucket.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return client.update(func(bucket *bolt.Bucket) error {
		if bucket.Get(key) == nil {
			return storage.ErrKeyNotFound.New("%q", key)
		}
		return bucket.Delete(key)
	})
}

// List returns up to limit keys at or after first.
func (client *Client) List(ctx context.Context, first storage.Key, limit int) (_ storage.Keys, err error) {
	defer mon.Task()(&ctx)(&err)
	var keys storage.Keys
	err = client.view(func(bucket *bolt.Bucket) error {
		cursor := bucket.Cursor()
		var k []byte
		if first.IsZero() {
			k, _ = cursor.First()
		} else {
			k, _ = cursor.Seek(first)
		}
		for ; k != nil; k, _ = cursor.Next() {
			if limit > 0 && len(keys) >= limit {
				break
			}
			keys = append(keys, storage.CloneKey(storage.Key(k)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// CompareAndSwap atomically compares and swaps oldValue with newValue
// inside a single bolt update transaction.
func (client *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return client.update(func(bucket *bolt.Bucket) error {
		current := bucket.Get(key)
		if current == nil {
			if oldValue != nil {
				return storage.ErrKeyNotFound.New("%q", key)
			}
			if newValue == nil {
				return nil
			}
			return bucket.Put(key, newValue)
		}

		if oldValue == nil || !bytes.Equal(current, oldValue) {
			return storage.ErrValueChanged.New("%q", key)
		}
		if newValue == nil {
			return bucket.Delete(key)
		}
		return bucket.Put(key, newValue)
	})
}
