// Copyright (C) 2025 Tessera Authors.
// See LICENSE for copying information.

package bloomfilter

// version is the serialization format version.
const version = 1

// Bytes serializes the filter: a version byte, the seed, the hash count,
// then the raw table.
func (filter *Filter) Bytes() []byte {
	bytes := make([]byte, 0, 3+len(filter.table))
	bytes = append(bytes, version, filter.seed, filter.hashCount)
	bytes = append(bytes, filter.table...)
	return bytes
}

// NewFromBytes decodes a filter from its serialized form.
func NewFromBytes(bytes []byte) (*Filter, error) {
	if len(bytes) < 4 {
		return nil, Error.New("not enough data")
	}
	if bytes[0] != version {
		return nil, Error.New("unsupported version %d", bytes[0])
	}

	filter := &Filter{
		seed:      bytes[1],
		hashCount: bytes[2],
		table:     append([]byte(nil), bytes[3:]...),
	}
	if filter.hashCount == 0 {
		return nil, Error.New("invalid hash count")
	}
	return filter, nil
}
