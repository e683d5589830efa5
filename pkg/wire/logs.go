// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// Global log entry fields.
const (
	globalCreatedTime = 1
	globalParents     = 2
	globalPuts        = 3
)

// Global put fields.
const (
	globalPutID    = 1
	globalPutValue = 2
)

// MarshalGlobalLogEntry serializes a global-log entry without its id.
func MarshalGlobalLogEntry(entry *tessera.GlobalLogEntry) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, globalCreatedTime, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.CreatedTime))
	for _, parent := range entry.Parents {
		buf = protowire.AppendTag(buf, globalParents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, parent.Bytes())
	}
	for _, put := range entry.Puts {
		var item []byte
		item = protowire.AppendTag(item, globalPutID, protowire.BytesType)
		item = protowire.AppendString(item, string(put.ID))
		item = protowire.AppendTag(item, globalPutValue, protowire.BytesType)
		item = protowire.AppendBytes(item, put.Value)
		buf = protowire.AppendTag(buf, globalPuts, protowire.BytesType)
		buf = protowire.AppendBytes(buf, item)
	}
	return buf
}

// UnmarshalGlobalLogEntry decodes a global-log entry and sets its id from
// the raw bytes.
func UnmarshalGlobalLogEntry(data []byte) (*tessera.GlobalLogEntry, error) {
	entry := &tessera.GlobalLogEntry{ID: tessera.HashOf(data)}
	err := consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case globalCreatedTime:
			entry.CreatedTime = int64(value)
		case globalParents:
			parent, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			entry.Parents = append(entry.Parents, parent)
		case globalPuts:
			var put tessera.ContentIDAndBytes
			err := consumeFields(payload, func(num protowire.Number, payload []byte, value uint64) error {
				switch num {
				case globalPutID:
					put.ID = tessera.ContentID(payload)
				case globalPutValue:
					put.Value = cloneBytes(payload)
				}
				return nil
			})
			if err != nil {
				return err
			}
			entry.Puts = append(entry.Puts, put)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Ref log entry fields.
const (
	refLogParents       = 1
	refLogRefName       = 2
	refLogRefType       = 3
	refLogCommitHash    = 4
	refLogOperation     = 5
	refLogOperationTime = 6
	refLogSourceHashes  = 7
)

// MarshalRefLogEntry serializes a ref-log entry without its id.
func MarshalRefLogEntry(entry *tessera.RefLogEntry) []byte {
	var buf []byte
	for _, parent := range entry.Parents {
		buf = protowire.AppendTag(buf, refLogParents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, parent.Bytes())
	}
	buf = protowire.AppendTag(buf, refLogRefName, protowire.BytesType)
	buf = protowire.AppendString(buf, entry.RefName)
	buf = protowire.AppendTag(buf, refLogRefType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.RefType))
	buf = protowire.AppendTag(buf, refLogCommitHash, protowire.BytesType)
	buf = protowire.AppendBytes(buf, entry.CommitHash.Bytes())
	buf = protowire.AppendTag(buf, refLogOperation, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.Operation))
	buf = protowire.AppendTag(buf, refLogOperationTime, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.OperationTime))
	for _, source := range entry.SourceHashes {
		buf = protowire.AppendTag(buf, refLogSourceHashes, protowire.BytesType)
		buf = protowire.AppendBytes(buf, source.Bytes())
	}
	return buf
}

// UnmarshalRefLogEntry decodes a ref-log entry and sets its id from the
// raw bytes.
func UnmarshalRefLogEntry(data []byte) (*tessera.RefLogEntry, error) {
	entry := &tessera.RefLogEntry{ID: tessera.HashOf(data)}
	err := consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case refLogParents:
			parent, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			entry.Parents = append(entry.Parents, parent)
		case refLogRefName:
			entry.RefName = string(payload)
		case refLogRefType:
			entry.RefType = tessera.RefType(value)
		case refLogCommitHash:
			hash, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			entry.CommitHash = hash
		case refLogOperation:
			entry.Operation = tessera.RefLogOp(value)
		case refLogOperationTime:
			entry.OperationTime = int64(value)
		case refLogSourceHashes:
			source, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			entry.SourceHashes = append(entry.SourceHashes, source)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
