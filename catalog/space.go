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

package catalog

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/listdb/listdb/common/kvstore"
	apierrors "github.com/listdb/listdb/errors"
	"github.com/listdb/listdb/idgenerator"
	"github.com/listdb/listdb/index"
	"github.com/listdb/listdb/partition"
	"github.com/listdb/listdb/proto"
)

// Space holds one entity set behind a fixed schema. Writes are prepared
// here into ops and committed through the transaction log; apply methods
// are the log's consumer side and stage mutations onto the record's batch.
type Space struct {
	// read only
	sid         proto.Sid
	name        string
	spaceType   proto.SpaceType
	locationKey string
	fixedFields map[string]proto.FieldMeta

	entityCounts []uint64

	storage  *storage
	idx      *index.Index
	assigner *partition.Assigner
	idGen    idgenerator.IDGenerator
}

func newSpace(meta *proto.SpaceMeta, storage *storage, idx *index.Index, assigner *partition.Assigner, idGen idgenerator.IDGenerator) *Space {
	fixedFields := make(map[string]proto.FieldMeta, len(meta.FixedFields))
	for _, field := range meta.FixedFields {
		fixedFields[field.Name] = field
	}
	return &Space{
		sid:          meta.Sid,
		name:         meta.Name,
		spaceType:    meta.Type,
		locationKey:  meta.LocationKey,
		fixedFields:  fixedFields,
		entityCounts: make([]uint64, assigner.Count()),
		storage:      storage,
		idx:          idx,
		assigner:     assigner,
		idGen:        idGen,
	}
}

func (s *Space) Sid() proto.Sid {
	return s.sid
}

func (s *Space) Name() string {
	return s.name
}

func (s *Space) Meta() *proto.SpaceMeta {
	fields := make([]proto.FieldMeta, 0, len(s.fixedFields))
	for _, field := range s.fixedFields {
		fields = append(fields, field)
	}
	return &proto.SpaceMeta{
		Sid:         s.sid,
		Name:        s.name,
		Type:        s.spaceType,
		Partitions:  s.assigner.Count(),
		LocationKey: s.locationKey,
		FixedFields: fields,
	}
}

// PrepareInsert validates the entity, allocates its id and returns the op
// to commit. The id is final: the partition is fixed at prepare time, by
// sequence for hash spaces and by location for geo spaces.
func (s *Space) PrepareInsert(ctx context.Context, entity *proto.Entity) (proto.Op, error) {
	if err := s.validateFields(entity.Fields); err != nil {
		return proto.Op{}, err
	}

	_, seq, err := s.idGen.Alloc(ctx, s.name, 1)
	if err != nil {
		return proto.Op{}, err
	}

	var pid proto.PartitionID
	switch s.spaceType {
	case proto.SpaceTypeHash:
		pid = s.assigner.Assign(seq)
	case proto.SpaceTypeGeo:
		point, err := s.locationOf(entity)
		if err != nil {
			return proto.Op{}, err
		}
		pid = s.assigner.AssignGeo(point.Lat, point.Lng)
	default:
		return proto.Op{}, apierrors.ErrUnknownSpaceType
	}

	inserted := &proto.Entity{ID: proto.BuildEntityID(pid, seq), Fields: entity.Fields}
	return proto.Op{Type: proto.OpInsertEntity, Sid: s.sid, Entity: inserted}, nil
}

// PrepareUpdate validates the new field values of an existing entity. The
// id, and with it the partition, never changes on update.
func (s *Space) PrepareUpdate(ctx context.Context, entity *proto.Entity) (proto.Op, error) {
	if err := s.checkEntityID(entity.ID); err != nil {
		return proto.Op{}, err
	}
	if err := s.validateFields(entity.Fields); err != nil {
		return proto.Op{}, err
	}
	if _, err := s.GetEntity(ctx, entity.ID); err != nil {
		return proto.Op{}, err
	}
	return proto.Op{Type: proto.OpUpdateEntity, Sid: s.sid, Entity: entity}, nil
}

func (s *Space) PrepareDelete(ctx context.Context, id proto.EntityID) (proto.Op, error) {
	if err := s.checkEntityID(id); err != nil {
		return proto.Op{}, err
	}
	if _, err := s.GetEntity(ctx, id); err != nil {
		return proto.Op{}, err
	}
	return proto.Op{Type: proto.OpDeleteEntity, Sid: s.sid, ID: id}, nil
}

func (s *Space) GetEntity(ctx context.Context, id proto.EntityID) (*proto.Entity, error) {
	entity, err := s.storage.GetEntity(ctx, s.sid, id)
	if err == kvstore.ErrNotFound {
		return nil, apierrors.ErrEntityDoesNotExist
	}
	return entity, err
}

// ListEntities returns up to count entities of one partition in id order,
// starting past marker when set. A count of 0 means the cap.
func (s *Space) ListEntities(ctx context.Context, pid proto.PartitionID, marker proto.EntityID, count int) ([]*proto.Entity, error) {
	if pid >= s.assigner.Count() {
		return nil, apierrors.ErrPartitionDoesNotExist
	}
	if count <= 0 {
		count = proto.MaxListNum
	}
	if count > proto.MaxListNum {
		return nil, apierrors.ErrListNumExceed
	}
	return s.storage.ListEntities(ctx, s.sid, pid, marker, count)
}

// ScanIndex returns ids of entities whose indexed field holds value.
func (s *Space) ScanIndex(ctx context.Context, field string, value []byte) ([]proto.EntityID, error) {
	meta, ok := s.fixedFields[field]
	if !ok {
		return nil, apierrors.ErrUnknownField
	}
	if !meta.Indexed {
		return nil, apierrors.ErrNotIndexed
	}
	return s.idx.Scan(ctx, s.sid, field, value)
}

// Range walks every entity of the space in id order.
func (s *Space) Range(ctx context.Context, f func(entity *proto.Entity) error) error {
	return s.storage.RangeEntities(ctx, s.sid, f)
}

// Stats returns the entity count of each partition.
func (s *Space) Stats() []uint64 {
	ret := make([]uint64, len(s.entityCounts))
	for i := range s.entityCounts {
		ret[i] = atomic.LoadUint64(&s.entityCounts[i])
	}
	return ret
}

type entityKey struct {
	sid proto.Sid
	id  proto.EntityID
}

// applyState stages one record's mutations. Reads resolve against the
// record's own staged writes first, so a later op of the record sees what
// an earlier op wrote; a nil staged entity marks a staged delete.
type applyState struct {
	storage *storage
	batch   kvstore.WriteBatch
	staged  map[entityKey]*proto.Entity
}

func newApplyState(storage *storage, batch kvstore.WriteBatch) *applyState {
	return &applyState{
		storage: storage,
		batch:   batch,
		staged:  make(map[entityKey]*proto.Entity),
	}
}

func (st *applyState) get(ctx context.Context, sid proto.Sid, id proto.EntityID) (*proto.Entity, error) {
	if entity, ok := st.staged[entityKey{sid, id}]; ok {
		if entity == nil {
			return nil, kvstore.ErrNotFound
		}
		return entity, nil
	}
	return st.storage.GetEntity(ctx, sid, id)
}

func (st *applyState) put(sid proto.Sid, entity *proto.Entity) error {
	if err := st.storage.PutEntity(st.batch, sid, entity); err != nil {
		return err
	}
	st.staged[entityKey{sid, entity.ID}] = entity
	return nil
}

func (st *applyState) delete(sid proto.Sid, id proto.EntityID) {
	st.storage.DeleteEntity(st.batch, sid, id)
	st.staged[entityKey{sid, id}] = nil
}

// applyInsert stages an insert onto the record's batch. Replayed records
// land on an entity that is already present; those stage nothing and count
// nothing.
func (s *Space) applyInsert(ctx context.Context, st *applyState, entity *proto.Entity) (delta int, err error) {
	_, err = st.get(ctx, s.sid, entity.ID)
	if err == nil {
		return 0, nil
	}
	if err != kvstore.ErrNotFound {
		return 0, err
	}

	if err := st.put(s.sid, entity); err != nil {
		return 0, err
	}
	for i := range entity.Fields {
		if s.fixedFields[entity.Fields[i].Name].Indexed {
			s.idx.Put(st.batch, s.sid, entity.Fields[i].Name, entity.Fields[i].Value, entity.ID)
		}
	}
	return 1, nil
}

func (s *Space) applyUpdate(ctx context.Context, st *applyState, entity *proto.Entity) error {
	old, err := st.get(ctx, s.sid, entity.ID)
	if err == kvstore.ErrNotFound {
		// replay of an update whose entity a later record deleted
		return nil
	}
	if err != nil {
		return err
	}

	merged := mergeFields(old.Fields, entity.Fields)
	updated := &proto.Entity{ID: entity.ID, Fields: merged}
	if err := st.put(s.sid, updated); err != nil {
		return err
	}

	for i := range old.Fields {
		if s.fixedFields[old.Fields[i].Name].Indexed {
			s.idx.Delete(st.batch, s.sid, old.Fields[i].Name, old.Fields[i].Value, old.ID)
		}
	}
	for i := range merged {
		if s.fixedFields[merged[i].Name].Indexed {
			s.idx.Put(st.batch, s.sid, merged[i].Name, merged[i].Value, updated.ID)
		}
	}
	return nil
}

func (s *Space) applyDelete(ctx context.Context, st *applyState, id proto.EntityID) (delta int, err error) {
	old, err := st.get(ctx, s.sid, id)
	if err == kvstore.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	st.delete(s.sid, id)
	for i := range old.Fields {
		if s.fixedFields[old.Fields[i].Name].Indexed {
			s.idx.Delete(st.batch, s.sid, old.Fields[i].Name, old.Fields[i].Value, id)
		}
	}
	return -1, nil
}

func (s *Space) addEntityCount(pid proto.PartitionID, delta int) {
	if delta > 0 {
		atomic.AddUint64(&s.entityCounts[pid], 1)
	} else if delta < 0 {
		atomic.AddUint64(&s.entityCounts[pid], ^uint64(0))
	}
}

// rebuildStats recounts partitions from storage. Called once on open.
func (s *Space) rebuildStats(ctx context.Context) error {
	counts := make([]uint64, s.assigner.Count())
	err := s.storage.RangeEntities(ctx, s.sid, func(entity *proto.Entity) error {
		pid := proto.PartitionOfEntity(entity.ID)
		if pid >= proto.PartitionID(len(counts)) {
			return apierrors.ErrEntityMismatchPartition
		}
		counts[pid]++
		return nil
	})
	if err != nil {
		return err
	}
	for i := range counts {
		atomic.StoreUint64(&s.entityCounts[i], counts[i])
	}
	return nil
}

func (s *Space) checkEntityID(id proto.EntityID) error {
	if proto.PartitionOfEntity(id) >= s.assigner.Count() {
		return apierrors.ErrEntityMismatchPartition
	}
	return nil
}

func (s *Space) validateFields(fields []proto.Field) error {
	for i := range fields {
		meta, ok := s.fixedFields[fields[i].Name]
		if !ok {
			return apierrors.ErrUnknownField
		}
		if err := validateFieldValue(meta.Type, fields[i].Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Space) locationOf(entity *proto.Entity) (*proto.GeoPoint, error) {
	value, ok := entity.GetField(s.locationKey)
	if !ok {
		return nil, apierrors.ErrMissingLocation
	}
	point := &proto.GeoPoint{}
	if err := point.Unmarshal(value); err != nil {
		return nil, apierrors.ErrInvalidLocation
	}
	return point, nil
}

func validateFieldValue(typ proto.FieldType, value []byte) error {
	switch typ {
	case proto.FieldTypeString:
		return nil
	case proto.FieldTypeNumber:
		if _, err := strconv.ParseFloat(string(value), 64); err != nil {
			return apierrors.ErrInvalidEntity
		}
	case proto.FieldTypeBool:
		if _, err := strconv.ParseBool(string(value)); err != nil {
			return apierrors.ErrInvalidEntity
		}
	case proto.FieldTypeLocation:
		point := &proto.GeoPoint{}
		if err := point.Unmarshal(value); err != nil {
			return apierrors.ErrInvalidLocation
		}
	default:
		return apierrors.ErrUnknownFieldType
	}
	return nil
}

func mergeFields(old, updates []proto.Field) []proto.Field {
	merged := make([]proto.Field, len(old), len(old)+len(updates))
	copy(merged, old)
next:
	for i := range updates {
		for j := range merged {
			if merged[j].Name == updates[i].Name {
				merged[j].Value = updates[i].Value
				continue next
			}
		}
		merged = append(merged, updates[i])
	}
	return merged
}
