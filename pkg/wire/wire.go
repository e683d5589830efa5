// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

// Package wire implements the stable binary schema for all persisted
// records. Records are encoded protobuf-style with explicit field numbers
// and written in canonical field order, so a record's serialized form is
// deterministic and its hash reproducible. Unknown fields are tolerated on
// read; records are immutable, so they are never rewritten.
package wire

import (
	"github.com/zeebo/errs"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// Error is the class for malformed or truncated records.
var Error = errs.Class("wire")

// Commit log entry fields.
const (
	commitCreatedTime     = 1
	commitSeq             = 2
	commitParents         = 3
	commitMetadata        = 4
	commitPuts            = 5
	commitDeletes         = 6
	commitKeyListDistance = 7
	commitKeyList         = 8
)

// Put and key-list item fields.
const (
	putKey   = 1
	putID    = 2
	putType  = 3
	putValue = 4
)

// Key fields.
const (
	keyElement = 1
)

// MarshalCommitLogEntry serializes an entry without its hash; the hash is
// defined as the hash of these bytes.
func MarshalCommitLogEntry(entry *tessera.CommitLogEntry) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, commitCreatedTime, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.CreatedTime))
	buf = protowire.AppendTag(buf, commitSeq, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.CommitSeq))
	for _, parent := range entry.Parents {
		buf = protowire.AppendTag(buf, commitParents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, parent.Bytes())
	}
	if len(entry.Metadata) > 0 {
		buf = protowire.AppendTag(buf, commitMetadata, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry.Metadata)
	}
	for i := range entry.Puts {
		buf = protowire.AppendTag(buf, commitPuts, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendPut(nil, &entry.Puts[i]))
	}
	for _, key := range entry.Deletes {
		buf = protowire.AppendTag(buf, commitDeletes, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendKey(nil, key))
	}
	buf = protowire.AppendTag(buf, commitKeyListDistance, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.KeyListDistance))
	for i := range entry.KeyList {
		buf = protowire.AppendTag(buf, commitKeyList, protowire.BytesType)
		buf = protowire.AppendBytes(buf, appendKeyWithType(nil, &entry.KeyList[i]))
	}
	return buf
}

// UnmarshalCommitLogEntry decodes an entry and sets its hash from the raw
// bytes.
func UnmarshalCommitLogEntry(data []byte) (*tessera.CommitLogEntry, error) {
	entry := &tessera.CommitLogEntry{Hash: tessera.HashOf(data)}
	err := consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case commitCreatedTime:
			entry.CreatedTime = int64(value)
		case commitSeq:
			entry.CommitSeq = int64(value)
		case commitParents:
			parent, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			entry.Parents = append(entry.Parents, parent)
		case commitMetadata:
			entry.Metadata = cloneBytes(payload)
		case commitPuts:
			put, err := consumePut(payload)
			if err != nil {
				return err
			}
			entry.Puts = append(entry.Puts, put)
		case commitDeletes:
			key, err := consumeKey(payload)
			if err != nil {
				return err
			}
			entry.Deletes = append(entry.Deletes, key)
		case commitKeyListDistance:
			entry.KeyListDistance = int32(value)
		case commitKeyList:
			kt, err := consumeKeyWithType(payload)
			if err != nil {
				return err
			}
			entry.KeyList = append(entry.KeyList, kt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func appendPut(buf []byte, put *tessera.KeyWithBytes) []byte {
	buf = protowire.AppendTag(buf, putKey, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendKey(nil, put.Key))
	buf = protowire.AppendTag(buf, putID, protowire.BytesType)
	buf = protowire.AppendString(buf, string(put.ID))
	buf = protowire.AppendTag(buf, putType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(put.Type))
	buf = protowire.AppendTag(buf, putValue, protowire.BytesType)
	buf = protowire.AppendBytes(buf, put.Value)
	return buf
}

func consumePut(data []byte) (put tessera.KeyWithBytes, err error) {
	err = consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case putKey:
			key, err := consumeKey(payload)
			if err != nil {
				return err
			}
			put.Key = key
		case putID:
			put.ID = tessera.ContentID(payload)
		case putType:
			put.Type = tessera.ContentType(value)
		case putValue:
			put.Value = cloneBytes(payload)
		}
		return nil
	})
	return put, err
}

func appendKeyWithType(buf []byte, kt *tessera.KeyWithType) []byte {
	buf = protowire.AppendTag(buf, putKey, protowire.BytesType)
	buf = protowire.AppendBytes(buf, appendKey(nil, kt.Key))
	buf = protowire.AppendTag(buf, putID, protowire.BytesType)
	buf = protowire.AppendString(buf, string(kt.ID))
	buf = protowire.AppendTag(buf, putType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(kt.Type))
	return buf
}

func consumeKeyWithType(data []byte) (kt tessera.KeyWithType, err error) {
	err = consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case putKey:
			key, err := consumeKey(payload)
			if err != nil {
				return err
			}
			kt.Key = key
		case putID:
			kt.ID = tessera.ContentID(payload)
		case putType:
			kt.Type = tessera.ContentType(value)
		}
		return nil
	})
	return kt, err
}

func appendKey(buf []byte, key tessera.Key) []byte {
	for _, element := range key.Elements() {
		buf = protowire.AppendTag(buf, keyElement, protowire.BytesType)
		buf = protowire.AppendString(buf, element)
	}
	return buf
}

func consumeKey(data []byte) (tessera.Key, error) {
	var elements []string
	err := consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		if num == keyElement {
			elements = append(elements, string(payload))
		}
		return nil
	})
	if err != nil {
		return tessera.Key{}, err
	}
	return tessera.NewKey(elements...), nil
}

func cloneBytes(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return append([]byte(nil), data...)
}

// consumeFields walks all fields of a record, handing varint values and
// length-delimited payloads to fn. Unknown wire types are skipped.
func consumeFields(data []byte, fn func(num protowire.Number, payload []byte, value uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Error.New("invalid tag: %v", protowire.ParseError(n))
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Error.New("invalid varint field %d: %v", num, protowire.ParseError(n))
			}
			if err := fn(num, nil, value); err != nil {
				return err
			}
			data = data[n:]
		case protowire.BytesType:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Error.New("invalid bytes field %d: %v", num, protowire.ParseError(n))
			}
			if err := fn(num, payload, 0); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Error.New("invalid field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
