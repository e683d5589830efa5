// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package redis

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-redis/redis"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/tessera-io/tessera/storage"
)

var (
	mon = monkit.Package()

	// Error is the class for redis errors.
	Error = errs.Class("redis")
)

// Client is the entrypoint into a redis data store.
type Client struct {
	db *redis.Client
}

// New returns a configured Client instance, verifying a successful
// connection to redis.
func New(address, password string, db int) (*Client, error) {
	client := &Client{
		db: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}

	if err := client.db.Ping().Err(); err != nil {
		return nil, Error.New("ping failed: %v", err)
	}
	return client, nil
}

// NewClientFrom returns a configured Client instance from a redis address
// url, verifying a successful connection to redis.
func NewClientFrom(address string) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if u.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address: %q", address)
	}

	q := u.Query()
	db, err := strconv.Atoi(q.Get("db"))
	if err != nil {
		return nil, Error.New("invalid db: %q", q.Get("db"))
	}

	password, _ := u.User.Password()
	return New(u.Host, password, db)
}

// Close closes a redis client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

// Put adds a value to the provided key.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return Error.Wrap(client.db.Set(key.String(), []byte(value), 0).Err())
}

// Get looks up the provided key and returns its value.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}
	value, err := client.db.Get(key.String()).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, Error.New("get error: %v", err)
	}
	return value, nil
}

// GetAll returns the values for the provided keys, nil for missing keys.
func (client *Client) GetAll(ctx context.Context, keys storage.Keys) (_ []storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if len(keys) == 0 {
		return nil, nil
	}
	results, err := client.db.MGet(keys.Strings()...).Result()
	if err != nil {
		return nil, Error.New("mget error: %v", err)
	}
	values := make([]storage.Value, 0, len(results))
	for _, result := range results {
		switch value := result.(type) {
		case string:
			values = append(values, storage.Value(value))
		default:
			values = append(values, nil)
		}
	}
	return values, nil
}

// Delete deletes a key/value pair from redis.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	deleted, err := client.db.Del(key.String()).Result()
	if err != nil {
		return Error.New("delete error: %v", err)
	}
	if deleted == 0 {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	return nil
}

// List returns up to limit keys at or after first. Redis keeps keys
// unordered, so the scan collects everything once and sorts.
func (client *Client) List(ctx context.Context, first storage.Key, limit int) (_ storage.Keys, err error) {
	defer mon.Task()(&ctx)(&err)

	var all []string
	var cursor uint64
	for {
		page, next, err := client.db.Scan(cursor, "", 0).Result()
		if err != nil {
			return nil, Error.New("scan error: %v", err)
		}
		all = append(all, page...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(all)

	var keys storage.Keys
	for _, key := range all {
		if !first.IsZero() && key < first.String() {
			continue
		}
		if limit > 0 && len(keys) >= limit {
			break
		}
		keys = append(keys, storage.Key(key))
	}
	return keys, nil
}

// CompareAndSwap atomically compares and swaps oldValue with newValue
// using an optimistic WATCH/MULTI transaction.
func (client *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(key.String()).Bytes()
		if err == redis.Nil {
			if oldValue != nil {
				return storage.ErrKeyNotFound.New("%q", key)
			}
			if newValue == nil {
				return nil
			}
			_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
				pipe.Set(key.String(), []byte(newValue), 0)
				return nil
			})
			return Error.Wrap(err)
		}
		if err != nil {
			return Error.New("get error: %v", err)
		}

		if oldValue == nil || !bytes.Equal(current, oldValue) {
			return storage.ErrValueChanged.New("%q", key)
		}

		_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
			if newValue == nil {
				pipe.Del(key.String())
			} else {
				pipe.Set(key.String(), []byte(newValue), 0)
			}
			return nil
		})
		return Error.Wrap(err)
	}

	err = client.db.Watch(txf, key.String())
	if err == redis.TxFailedErr {
		// another writer raced the transaction, which counts as a changed
		// value for the caller's CAS loop
		return storage.ErrValueChanged.New("%q", key)
	}
	return err
}
