// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package wire

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tessera-io/tessera/pkg/tessera"
)

// Global pointer fields.
const (
	pointerGlobalID      = 1
	pointerNamedRefs     = 2
	pointerRefLogID      = 3
	pointerGlobalParents = 4
	pointerRefLogParents = 5
)

// Named reference fields.
const (
	namedRefName = 1
	namedRefType = 2
	namedRefHash = 3
)

// MarshalGlobalPointer serializes the global pointer.
func MarshalGlobalPointer(pointer *tessera.GlobalPointer) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, pointerGlobalID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, pointer.GlobalID.Bytes())
	for _, ref := range pointer.NamedReferences {
		var item []byte
		item = protowire.AppendTag(item, namedRefName, protowire.BytesType)
		item = protowire.AppendString(item, ref.Ref.Name)
		item = protowire.AppendTag(item, namedRefType, protowire.VarintType)
		item = protowire.AppendVarint(item, uint64(ref.Ref.Type))
		item = protowire.AppendTag(item, namedRefHash, protowire.BytesType)
		item = protowire.AppendBytes(item, ref.Hash.Bytes())
		buf = protowire.AppendTag(buf, pointerNamedRefs, protowire.BytesType)
		buf = protowire.AppendBytes(buf, item)
	}
	buf = protowire.AppendTag(buf, pointerRefLogID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, pointer.RefLogID.Bytes())
	for _, parent := range pointer.GlobalParents {
		buf = protowire.AppendTag(buf, pointerGlobalParents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, parent.Bytes())
	}
	for _, parent := range pointer.RefLogParents {
		buf = protowire.AppendTag(buf, pointerRefLogParents, protowire.BytesType)
		buf = protowire.AppendBytes(buf, parent.Bytes())
	}
	return buf
}

// UnmarshalGlobalPointer decodes the global pointer.
func UnmarshalGlobalPointer(data []byte) (*tessera.GlobalPointer, error) {
	pointer := &tessera.GlobalPointer{}
	err := consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case pointerGlobalID:
			hash, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			pointer.GlobalID = hash
		case pointerNamedRefs:
			var ref tessera.RefPointer
			err := consumeFields(payload, func(num protowire.Number, payload []byte, value uint64) error {
				switch num {
				case namedRefName:
					ref.Ref.Name = string(payload)
				case namedRefType:
					ref.Ref.Type = tessera.RefType(value)
				case namedRefHash:
					hash, err := tessera.HashFromBytes(payload)
					if err != nil {
						return err
					}
					ref.Hash = hash
				}
				return nil
			})
			if err != nil {
				return err
			}
			pointer.NamedReferences = append(pointer.NamedReferences, ref)
		case pointerRefLogID:
			hash, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			pointer.RefLogID = hash
		case pointerGlobalParents:
			hash, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			pointer.GlobalParents = append(pointer.GlobalParents, hash)
		case pointerRefLogParents:
			hash, err := tessera.HashFromBytes(payload)
			if err != nil {
				return err
			}
			pointer.RefLogParents = append(pointer.RefLogParents, hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pointer, nil
}

// Repository description fields.
const (
	repoVersion    = 1
	repoProperties = 2
)

// Property fields.
const (
	propertyKey   = 1
	propertyValue = 2
)

// MarshalRepoDescription serializes the repository description. Properties
// are written in sorted key order so the encoding is deterministic.
func MarshalRepoDescription(desc *tessera.RepoDescription) []byte {
	order := make([]string, 0, len(desc.Properties))
	for key := range desc.Properties {
		order = append(order, key)
	}
	sort.Strings(order)

	var buf []byte
	buf = protowire.AppendTag(buf, repoVersion, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(desc.RepoVersion))
	for _, key := range order {
		value := desc.Properties[key]
		var item []byte
		item = protowire.AppendTag(item, propertyKey, protowire.BytesType)
		item = protowire.AppendString(item, key)
		item = protowire.AppendTag(item, propertyValue, protowire.BytesType)
		item = protowire.AppendString(item, value)
		buf = protowire.AppendTag(buf, repoProperties, protowire.BytesType)
		buf = protowire.AppendBytes(buf, item)
	}
	return buf
}

// UnmarshalRepoDescription decodes the repository description.
func UnmarshalRepoDescription(data []byte) (*tessera.RepoDescription, error) {
	desc := &tessera.RepoDescription{Properties: map[string]string{}}
	err := consumeFields(data, func(num protowire.Number, payload []byte, value uint64) error {
		switch num {
		case repoVersion:
			desc.RepoVersion = int32(value)
		case repoProperties:
			var key, val string
			err := consumeFields(payload, func(num protowire.Number, payload []byte, value uint64) error {
				switch num {
				case propertyKey:
					key = string(payload)
				case propertyValue:
					val = string(payload)
				}
				return nil
			})
			if err != nil {
				return err
			}
			desc.Properties[key] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}
