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

// Package catalog is the space registry and the write path of the
// database. Space creation and entity mutations are prepared into ops,
// committed through the transaction log and applied back here onto
// storage, entity data and index entries in one batch per record.
package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/taskpool"
	"github.com/listdb/listdb/common/kvstore"
	apierrors "github.com/listdb/listdb/errors"
	"github.com/listdb/listdb/idgenerator"
	"github.com/listdb/listdb/index"
	"github.com/listdb/listdb/partition"
	"github.com/listdb/listdb/proto"
	"github.com/listdb/listdb/txlog"
)

const (
	defaultSplitMapNum  = 16
	defaultTaskPoolSize = 8

	sidScope = "sid"
)

type Config struct {
	Partition   partition.Config `json:"partition"`
	SplitMapNum uint32           `json:"split_map_num"`
}

type Catalog struct {
	spaces *concurrentSpaces

	storage  *storage
	idx      *index.Index
	assigner *partition.Assigner
	idGen    idgenerator.IDGenerator
	txLog    *txlog.Log
	taskPool taskpool.TaskPool

	lock sync.Mutex
}

// NewCatalog loads the persisted space registry and rebuilds per-space
// stats. The caller registers the catalog as the transaction log's applier
// and replays the log before serving.
func NewCatalog(ctx context.Context, cfg *Config, kvStore kvstore.Store, idGen idgenerator.IDGenerator, txLog *txlog.Log) (*Catalog, error) {
	span := trace.SpanFromContextSafe(ctx)
	if cfg.SplitMapNum == 0 {
		cfg.SplitMapNum = defaultSplitMapNum
	}

	assigner, err := partition.NewAssigner(&cfg.Partition)
	if err != nil {
		return nil, err
	}
	storage, err := newStorage(kvStore)
	if err != nil {
		return nil, err
	}
	idx, err := index.NewIndex(kvStore)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		spaces:   newConcurrentSpaces(cfg.SplitMapNum),
		storage:  storage,
		idx:      idx,
		assigner: assigner,
		idGen:    idGen,
		txLog:    txLog,
		taskPool: taskpool.New(defaultTaskPoolSize, defaultTaskPoolSize),
	}

	metas, err := storage.ListSpaces(ctx)
	if err != nil {
		return nil, errors.Info(err, "list spaces failed")
	}
	for _, meta := range metas {
		c.spaces.Put(newSpace(meta, storage, idx, assigner, idGen))
	}
	if err := c.rebuildStats(ctx); err != nil {
		return nil, errors.Info(err, "rebuild space stats failed")
	}

	span.Infof("catalog loaded, %d spaces, %d partitions", len(metas), assigner.Count())
	return c, nil
}

// CreateSpace registers a new space and commits it through the log. The
// returned sid is final once the call succeeds.
func (c *Catalog) CreateSpace(ctx context.Context, name string, spaceType proto.SpaceType, locationKey string, fixedFields []proto.FieldMeta) (proto.Sid, error) {
	if err := validateSchema(name, spaceType, locationKey, fixedFields); err != nil {
		return 0, err
	}

	// serialize creations so duplicate names race on the check
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.spaces.GetByName(name) != nil {
		return 0, apierrors.ErrSpaceAlreadyExists
	}

	_, sid, err := c.idGen.Alloc(ctx, sidScope, 1)
	if err != nil {
		return 0, err
	}
	meta := &proto.SpaceMeta{
		Sid:         proto.Sid(sid),
		Name:        name,
		Type:        spaceType,
		Partitions:  c.assigner.Count(),
		LocationKey: locationKey,
		FixedFields: fixedFields,
	}
	if _, err := c.txLog.Append(ctx, []proto.Op{{Type: proto.OpCreateSpace, Meta: meta}}); err != nil {
		return 0, err
	}
	return meta.Sid, nil
}

// DropSpace removes a space with all its entities and index entries,
// committed through the log like any other mutation.
func (c *Catalog) DropSpace(ctx context.Context, name string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	space := c.spaces.GetByName(name)
	if space == nil {
		return apierrors.ErrSpaceDoesNotExist
	}
	_, err := c.txLog.Append(ctx, []proto.Op{{Type: proto.OpDropSpace, Sid: space.sid, Meta: space.Meta()}})
	return err
}

func (c *Catalog) GetSpace(ctx context.Context, name string) (*Space, error) {
	if space := c.spaces.GetByName(name); space != nil {
		return space, nil
	}
	return nil, apierrors.ErrSpaceDoesNotExist
}

func (c *Catalog) GetSpaceByID(ctx context.Context, sid proto.Sid) (*Space, error) {
	if space := c.spaces.Get(sid); space != nil {
		return space, nil
	}
	return nil, apierrors.ErrSpaceDoesNotExist
}

func (c *Catalog) AllSpaces() []*Space {
	return c.spaces.List()
}

// Apply consumes one committed record: every op stages its mutations onto
// one batch, the batch commits, then in-memory stats move. Records may be
// re-delivered after a crash; apply methods tolerate that.
func (c *Catalog) Apply(ctx context.Context, rec *txlog.Record) error {
	span := trace.SpanFromContextSafe(ctx)

	batch := c.storage.kvStore.NewWriteBatch()
	defer batch.Close()
	st := newApplyState(c.storage, batch)

	type countDelta struct {
		space *Space
		pid   proto.PartitionID
		delta int
	}
	var (
		deltas      []countDelta
		createdMeta *proto.SpaceMeta
		dropped     []*Space
	)

	for i := range rec.Ops {
		op := &rec.Ops[i]
		switch op.Type {
		case proto.OpCreateSpace:
			if c.spaces.Get(op.Meta.Sid) != nil {
				continue
			}
			if err := c.storage.PutSpace(batch, op.Meta); err != nil {
				return err
			}
			createdMeta = op.Meta
		case proto.OpDropSpace:
			space := c.spaces.Get(op.Sid)
			if space == nil {
				// replayed drop
				continue
			}
			c.storage.DeleteSpace(batch, op.Sid)
			c.idx.DeleteSpace(batch, op.Sid)
			dropped = append(dropped, space)
		case proto.OpInsertEntity:
			space := c.spaces.Get(op.Sid)
			if space == nil {
				return apierrors.ErrSpaceDoesNotExist
			}
			delta, err := space.applyInsert(ctx, st, op.Entity)
			if err != nil {
				return err
			}
			deltas = append(deltas, countDelta{space, proto.PartitionOfEntity(op.Entity.ID), delta})
		case proto.OpUpdateEntity:
			space := c.spaces.Get(op.Sid)
			if space == nil {
				return apierrors.ErrSpaceDoesNotExist
			}
			if err := space.applyUpdate(ctx, st, op.Entity); err != nil {
				return err
			}
		case proto.OpDeleteEntity:
			space := c.spaces.Get(op.Sid)
			if space == nil {
				return apierrors.ErrSpaceDoesNotExist
			}
			delta, err := space.applyDelete(ctx, st, op.ID)
			if err != nil {
				return err
			}
			deltas = append(deltas, countDelta{space, proto.PartitionOfEntity(op.ID), delta})
		default:
			return apierrors.ErrUnknownOpType
		}
	}

	if batch.Count() > 0 {
		if err := c.storage.kvStore.Write(ctx, batch, nil); err != nil {
			span.Errorf("apply tx %d failed: %v", rec.TxID, err)
			return err
		}
	}

	for _, d := range deltas {
		d.space.addEntityCount(d.pid, d.delta)
	}
	if createdMeta != nil {
		c.spaces.Put(newSpace(createdMeta, c.storage, c.idx, c.assigner, c.idGen))
	}
	for _, space := range dropped {
		c.spaces.Delete(space)
	}
	return nil
}

func (c *Catalog) rebuildStats(ctx context.Context) error {
	spaces := c.spaces.List()

	var (
		wg       sync.WaitGroup
		firstErr atomic.Value
	)
	wg.Add(len(spaces))
	for i := range spaces {
		space := spaces[i]
		c.taskPool.Run(func() {
			defer wg.Done()
			if err := space.rebuildStats(ctx); err != nil {
				firstErr.CompareAndSwap(nil, err)
			}
		})
	}
	wg.Wait()

	if err, ok := firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (c *Catalog) Close() {
	c.taskPool.Close()
}

func validateSchema(name string, spaceType proto.SpaceType, locationKey string, fixedFields []proto.FieldMeta) error {
	if name == "" || len(fixedFields) == 0 {
		return apierrors.ErrInvalidSchema
	}
	if spaceType != proto.SpaceTypeHash && spaceType != proto.SpaceTypeGeo {
		return apierrors.ErrUnknownSpaceType
	}

	seen := make(map[string]struct{}, len(fixedFields))
	var locationType proto.FieldType
	for i := range fixedFields {
		field := &fixedFields[i]
		if field.Name == "" {
			return apierrors.ErrInvalidSchema
		}
		if _, ok := seen[field.Name]; ok {
			return apierrors.ErrInvalidSchema
		}
		seen[field.Name] = struct{}{}
		switch field.Type {
		case proto.FieldTypeString, proto.FieldTypeNumber, proto.FieldTypeBool, proto.FieldTypeLocation:
		default:
			return apierrors.ErrUnknownFieldType
		}
		if field.Name == locationKey {
			locationType = field.Type
		}
	}

	if spaceType == proto.SpaceTypeGeo {
		if locationKey == "" {
			return apierrors.ErrMissingLocation
		}
		if locationType != proto.FieldTypeLocation {
			return apierrors.ErrInvalidSchema
		}
	}
	return nil
}

// concurrentSpaces splits the sid map to spread lock contention; the name
// map rides the same locks.
type concurrentSpaces struct {
	total uint32
	num   uint32
	m     map[uint32]map[proto.Sid]*Space
	names map[uint32]map[string]*Space
	locks map[uint32]*sync.RWMutex
}

func newConcurrentSpaces(splitMapNum uint32) *concurrentSpaces {
	spaces := &concurrentSpaces{
		num:   splitMapNum,
		m:     make(map[uint32]map[proto.Sid]*Space),
		names: make(map[uint32]map[string]*Space),
		locks: make(map[uint32]*sync.RWMutex),
	}
	for i := uint32(0); i < splitMapNum; i++ {
		spaces.locks[i] = &sync.RWMutex{}
		spaces.m[i] = make(map[proto.Sid]*Space)
		spaces.names[i] = make(map[string]*Space)
	}
	return spaces
}

func (s *concurrentSpaces) Get(sid proto.Sid) *Space {
	idx := uint32(sid) % s.num
	s.locks[idx].RLock()
	defer s.locks[idx].RUnlock()
	return s.m[idx][sid]
}

func (s *concurrentSpaces) GetByName(name string) *Space {
	idx := s.nameCharSum(name) % s.num
	s.locks[idx].RLock()
	defer s.locks[idx].RUnlock()
	return s.names[idx][name]
}

func (s *concurrentSpaces) Put(v *Space) {
	idx := uint32(v.sid) % s.num
	s.locks[idx].Lock()
	s.m[idx][v.sid] = v
	s.locks[idx].Unlock()

	idx = s.nameCharSum(v.name) % s.num
	s.locks[idx].Lock()
	s.names[idx][v.name] = v
	s.locks[idx].Unlock()

	atomic.AddUint32(&s.total, 1)
}

func (s *concurrentSpaces) Delete(v *Space) {
	idx := uint32(v.sid) % s.num
	s.locks[idx].Lock()
	delete(s.m[idx], v.sid)
	s.locks[idx].Unlock()

	idx = s.nameCharSum(v.name) % s.num
	s.locks[idx].Lock()
	delete(s.names[idx], v.name)
	s.locks[idx].Unlock()

	atomic.AddUint32(&s.total, ^uint32(0))
}

func (s *concurrentSpaces) List() []*Space {
	ret := make([]*Space, 0, atomic.LoadUint32(&s.total))
	for i := uint32(0); i < s.num; i++ {
		l := s.locks[i]
		l.RLock()
		for _, v := range s.m[i] {
			ret = append(ret, v)
		}
		l.RUnlock()
	}
	return ret
}

func (s *concurrentSpaces) nameCharSum(name string) (ret uint32) {
	for i := range name {
		ret += uint32(name[i])
	}
	return
}
