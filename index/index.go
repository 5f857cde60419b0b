// Copyright 2026 The ListDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package index maintains the value index of a space. Every indexed field
// of an entity gets one entry keyed by (space, field, value, entity), so a
// prefix scan over (space, field, value) yields the matching entity ids in
// id order. Entries carry no payload; the key is the whole fact.
package index

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/proto"
	"github.com/listdb/listdb/util"
)

const CF = kvstore.CF("index")

var separator = []byte{0}

// Index writes and scans value-index entries. Mutations go onto the
// caller's batch so an entity and its entries commit atomically.
type Index struct {
	kvStore kvstore.Store
}

func NewIndex(kvStore kvstore.Store) (*Index, error) {
	if !kvStore.CheckColumns(CF) {
		if err := kvStore.CreateColumn(CF); err != nil {
			return nil, err
		}
	}
	return &Index{kvStore: kvStore}, nil
}

func (i *Index) Put(batch kvstore.WriteBatch, sid proto.Sid, field string, value []byte, id proto.EntityID) {
	batch.Put(CF, encodeEntryKey(sid, field, value, id), nil)
}

func (i *Index) Delete(batch kvstore.WriteBatch, sid proto.Sid, field string, value []byte, id proto.EntityID) {
	batch.Delete(CF, encodeEntryKey(sid, field, value, id))
}

// DeleteSpace drops every entry of a space.
func (i *Index) DeleteSpace(batch kvstore.WriteBatch, sid proto.Sid) {
	start := make([]byte, 8)
	end := make([]byte, 8)
	util.EncodeUint64(uint64(sid), start)
	util.EncodeUint64(uint64(sid)+1, end)
	batch.DeleteRange(CF, start, end)
}

// Scan returns the ids of entities whose field holds exactly value.
func (i *Index) Scan(ctx context.Context, sid proto.Sid, field string, value []byte) ([]proto.EntityID, error) {
	prefix := encodeScanPrefix(sid, field, value)
	lr := i.kvStore.List(ctx, CF, prefix, nil, nil)
	defer lr.Close()

	var ret []proto.EntityID
	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, errors.Info(err, "read next index entry failed")
		}
		if kg == nil || vg == nil {
			break
		}

		key := kg.Key()
		// longer values sharing the prefix show up in the scan, drop them
		if len(key) == len(prefix)+8 {
			ret = append(ret, decodeEntryID(key))
		}
		kg.Close()
		vg.Close()
	}
	return ret, nil
}

// ScanField returns ids of entities holding any value of field, with the
// value each entry indexes.
func (i *Index) ScanField(ctx context.Context, sid proto.Sid, field string) (ids []proto.EntityID, values [][]byte, err error) {
	prefix := encodeFieldPrefix(sid, field)
	lr := i.kvStore.List(ctx, CF, prefix, nil, nil)
	defer lr.Close()

	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, nil, errors.Info(err, "read next index entry failed")
		}
		if kg == nil || vg == nil {
			break
		}

		key := kg.Key()
		value := make([]byte, len(key)-len(prefix)-8-len(separator))
		copy(value, key[len(prefix):len(key)-8-len(separator)])
		ids = append(ids, decodeEntryID(key))
		values = append(values, value)
		kg.Close()
		vg.Close()
	}
	return ids, values, nil
}

func encodeFieldPrefix(sid proto.Sid, field string) []byte {
	key := make([]byte, 8+len(field)+len(separator))
	util.EncodeUint64(uint64(sid), key)
	copy(key[8:], field)
	copy(key[8+len(field):], separator)
	return key
}

func encodeScanPrefix(sid proto.Sid, field string, value []byte) []byte {
	fieldPrefixSize := 8 + len(field) + len(separator)
	key := make([]byte, fieldPrefixSize+len(value)+len(separator))
	copy(key, encodeFieldPrefix(sid, field))
	copy(key[fieldPrefixSize:], value)
	copy(key[fieldPrefixSize+len(value):], separator)
	return key
}

func encodeEntryKey(sid proto.Sid, field string, value []byte, id proto.EntityID) []byte {
	scanPrefixSize := 8 + len(field) + len(separator) + len(value) + len(separator)
	key := make([]byte, scanPrefixSize+8)
	copy(key, encodeScanPrefix(sid, field, value))
	util.EncodeUint64(uint64(id), key[scanPrefixSize:])
	return key
}

func decodeEntryID(key []byte) proto.EntityID {
	return proto.EntityID(util.DecodeUint64(key[len(key)-8:]))
}
