package catalog

import (
	"context"
	"encoding/json"

	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/proto"
)

type storage struct {
	kvStore kvstore.Store
}

func newStorage(kvStore kvstore.Store) (*storage, error) {
	for _, col := range []kvstore.CF{CF, dataCF} {
		if kvStore.CheckColumns(col) {
			continue
		}
		if err := kvStore.CreateColumn(col); err != nil {
			return nil, err
		}
	}
	return &storage{kvStore: kvStore}, nil
}

func (s *storage) PutSpace(batch kvstore.WriteBatch, meta *proto.SpaceMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	batch.Put(CF, encodeSpaceKey(meta.Sid), data)
	return nil
}

func (s *storage) ListSpaces(ctx context.Context) (ret []*proto.SpaceMeta, err error) {
	lr := s.kvStore.List(ctx, CF, encodeSpaceKeyPrefix(), nil, nil)
	defer lr.Close()

	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, err
		}
		if kg == nil || vg == nil {
			return ret, nil
		}

		meta := &proto.SpaceMeta{}
		if err = json.Unmarshal(vg.Value(), meta); err != nil {
			kg.Close()
			vg.Close()
			return nil, errors.Info(err, "unmarshal space meta failed")
		}

		ret = append(ret, meta)
		kg.Close()
		vg.Close()
	}
}

// DeleteSpace stages removal of a space's registration and all its data.
func (s *storage) DeleteSpace(batch kvstore.WriteBatch, sid proto.Sid) {
	batch.Delete(CF, encodeSpaceKey(sid))
	batch.DeleteRange(dataCF, encodeEntityKeyPrefix(sid), encodeEntityKeyPrefix(sid+1))
}

func (s *storage) GetEntity(ctx context.Context, sid proto.Sid, id proto.EntityID) (*proto.Entity, error) {
	data, err := s.kvStore.GetRaw(ctx, dataCF, encodeEntityKey(sid, id), nil)
	if err != nil {
		return nil, err
	}
	entity := &proto.Entity{}
	if err := json.Unmarshal(data, entity); err != nil {
		return nil, errors.Info(err, "unmarshal entity failed")
	}
	return entity, nil
}

func (s *storage) PutEntity(batch kvstore.WriteBatch, sid proto.Sid, entity *proto.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	batch.Put(dataCF, encodeEntityKey(sid, entity.ID), data)
	return nil
}

func (s *storage) DeleteEntity(batch kvstore.WriteBatch, sid proto.Sid, id proto.EntityID) {
	batch.Delete(dataCF, encodeEntityKey(sid, id))
}

// ListEntities scans one partition of a space in id order, starting past
// marker when set. A count of 0 means all.
func (s *storage) ListEntities(ctx context.Context, sid proto.Sid, pid proto.PartitionID, marker proto.EntityID, count int) (ret []*proto.Entity, err error) {
	prefix := encodePartitionKeyPrefix(sid, pid)
	var markerKey []byte
	if marker > 0 {
		markerKey = encodeEntityKey(sid, marker+1)
	}

	lr := s.kvStore.List(ctx, dataCF, prefix, markerKey, nil)
	defer lr.Close()

	for count == 0 || len(ret) < count {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, errors.Info(err, "read next entity failed")
		}
		if kg == nil || vg == nil {
			break
		}

		entity := &proto.Entity{}
		if err := json.Unmarshal(vg.Value(), entity); err != nil {
			kg.Close()
			vg.Close()
			return nil, errors.Info(err, "unmarshal entity failed")
		}
		ret = append(ret, entity)
		kg.Close()
		vg.Close()
	}
	return ret, nil
}

// RangeEntities walks every entity of a space.
func (s *storage) RangeEntities(ctx context.Context, sid proto.Sid, f func(entity *proto.Entity) error) error {
	lr := s.kvStore.List(ctx, dataCF, encodeEntityKeyPrefix(sid), nil, nil)
	defer lr.Close()

	for {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return errors.Info(err, "read next entity failed")
		}
		if kg == nil || vg == nil {
			return nil
		}

		entity := &proto.Entity{}
		if err := json.Unmarshal(vg.Value(), entity); err != nil {
			kg.Close()
			vg.Close()
			return errors.Info(err, "unmarshal entity failed")
		}
		kg.Close()
		vg.Close()
		if err := f(entity); err != nil {
			return err
		}
	}
}
