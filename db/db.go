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

// Package db assembles the database: one rocksdb store underneath the
// catalog, transaction log, id generator and query engine, opened as a
// single embedded instance.
package db

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/listdb/listdb/catalog"
	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/idgenerator"
	"github.com/listdb/listdb/index"
	"github.com/listdb/listdb/metrics"
	"github.com/listdb/listdb/proto"
	"github.com/listdb/listdb/query"
	"github.com/listdb/listdb/txlog"
	"github.com/listdb/listdb/util/limiter"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Path     string              `json:"path"`
	KVOption kvstore.Option      `json:"kv_option"`
	Catalog  catalog.Config      `json:"catalog"`
	Limit    limiter.LimitConfig `json:"limit"`
	Query    query.Config        `json:"query"`
}

type DB struct {
	kvStore kvstore.Store
	idGen   idgenerator.IDGenerator
	txLog   *txlog.Log
	catalog *catalog.Catalog
	engine  *query.Engine
	limiter limiter.Limiter

	// factsGroup collapses concurrent fact rebuilds after writes; factsTxID
	// is the log position the engine's fact set reflects.
	factsGroup singleflight.Group
	factsTxID  uint64
}

// Open builds the instance at cfg.Path, replaying any transaction log tail
// left by a crash before returning.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	span := trace.SpanFromContextSafe(ctx)

	cfg.KVOption.CreateIfMissing = true
	cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, catalog.CF, index.CF, txlog.CF)
	kvStore, err := kvstore.NewKVStore(ctx, cfg.Path, kvstore.RocksdbLsmKVType, &cfg.KVOption)
	if err != nil {
		return nil, errors.Info(err, "open kvstore failed")
	}

	lim := limiter.NewLimiter(cfg.Limit)
	idGen, err := idgenerator.NewIDGenerator(kvStore)
	if err != nil {
		kvStore.Close()
		return nil, errors.Info(err, "open id generator failed")
	}
	txLog, err := txlog.NewLog(kvStore, lim)
	if err != nil {
		kvStore.Close()
		return nil, errors.Info(err, "open transaction log failed")
	}
	cat, err := catalog.NewCatalog(ctx, &cfg.Catalog, kvStore, idGen, txLog)
	if err != nil {
		kvStore.Close()
		return nil, errors.Info(err, "open catalog failed")
	}
	txLog.SetApplier(cat)
	if err := txLog.Replay(ctx); err != nil {
		cat.Close()
		kvStore.Close()
		return nil, errors.Info(err, "replay transaction log failed")
	}
	engine, err := query.NewEngine(&cfg.Query)
	if err != nil {
		cat.Close()
		kvStore.Close()
		return nil, errors.Info(err, "open query engine failed")
	}

	db := &DB{
		kvStore: kvStore,
		idGen:   idGen,
		txLog:   txLog,
		catalog: cat,
		engine:  engine,
		limiter: lim,
	}
	span.Infof("database open at %s, tx %d", cfg.Path, txLog.TxID())
	return db, nil
}

// CreateSpace registers a space; see catalog.Catalog.CreateSpace.
func (db *DB) CreateSpace(ctx context.Context, name string, spaceType proto.SpaceType, locationKey string, fixedFields []proto.FieldMeta) (proto.Sid, error) {
	return db.catalog.CreateSpace(ctx, name, spaceType, locationKey, fixedFields)
}

func (db *DB) GetSpace(ctx context.Context, name string) (*catalog.Space, error) {
	return db.catalog.GetSpace(ctx, name)
}

// DropSpace removes a space with all its entities and index entries.
func (db *DB) DropSpace(ctx context.Context, name string) error {
	return db.catalog.DropSpace(ctx, name)
}

// Transact commits prepared ops as one atomic transaction and returns its
// log position.
func (db *DB) Transact(ctx context.Context, ops []proto.Op) (proto.TxID, error) {
	start := time.Now()
	txID, err := db.txLog.Append(ctx, ops)
	if err != nil {
		metrics.TransactionCount.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.TransactionCount.WithLabelValues("ok").Inc()
	metrics.TransactionDuration.Observe(time.Since(start).Seconds())
	for i := range ops {
		metrics.OpCount.WithLabelValues(db.opSpaceLabel(ctx, &ops[i]), ops[i].Type.String()).Inc()
	}
	return txID, nil
}

func (db *DB) opSpaceLabel(ctx context.Context, op *proto.Op) string {
	if op.Meta != nil {
		return op.Meta.Name
	}
	if space, err := db.catalog.GetSpaceByID(ctx, op.Sid); err == nil {
		return space.Name()
	}
	return "unknown"
}

// InsertEntity allocates an id, places the entity and commits it in one
// transaction.
func (db *DB) InsertEntity(ctx context.Context, spaceName string, entity *proto.Entity) (proto.EntityID, error) {
	space, err := db.catalog.GetSpace(ctx, spaceName)
	if err != nil {
		return 0, err
	}
	op, err := space.PrepareInsert(ctx, entity)
	if err != nil {
		return 0, err
	}
	if _, err := db.Transact(ctx, []proto.Op{op}); err != nil {
		return 0, err
	}
	return op.Entity.ID, nil
}

func (db *DB) UpdateEntity(ctx context.Context, spaceName string, entity *proto.Entity) error {
	space, err := db.catalog.GetSpace(ctx, spaceName)
	if err != nil {
		return err
	}
	op, err := space.PrepareUpdate(ctx, entity)
	if err != nil {
		return err
	}
	_, err = db.Transact(ctx, []proto.Op{op})
	return err
}

func (db *DB) DeleteEntity(ctx context.Context, spaceName string, id proto.EntityID) error {
	space, err := db.catalog.GetSpace(ctx, spaceName)
	if err != nil {
		return err
	}
	op, err := space.PrepareDelete(ctx, id)
	if err != nil {
		return err
	}
	_, err = db.Transact(ctx, []proto.Op{op})
	return err
}

func (db *DB) GetEntity(ctx context.Context, spaceName string, id proto.EntityID) (*proto.Entity, error) {
	space, err := db.catalog.GetSpace(ctx, spaceName)
	if err != nil {
		return nil, err
	}
	return space.GetEntity(ctx, id)
}

func (db *DB) ListEntities(ctx context.Context, spaceName string, pid proto.PartitionID, marker proto.EntityID, count int) ([]*proto.Entity, error) {
	space, err := db.catalog.GetSpace(ctx, spaceName)
	if err != nil {
		return nil, err
	}
	return space.ListEntities(ctx, pid, marker, count)
}

// LoadRules adds Datalog rules on top of the base predicates.
func (db *DB) LoadRules(rules string) error {
	return db.engine.LoadRules(rules)
}

// Query refreshes the engine's fact set to the current log position and
// evaluates one query atom.
func (db *DB) Query(ctx context.Context, q string) (*query.Result, error) {
	if err := db.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer db.limiter.ReleaseRead()

	if err := db.refreshFacts(ctx); err != nil {
		return nil, err
	}
	res, err := db.engine.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.QueryDuration.Observe(res.Duration.Seconds())
	return res, nil
}

// History returns committed transaction records; see txlog.Log.List.
func (db *DB) History(ctx context.Context, fromTxID proto.TxID, count int) ([]txlog.Record, error) {
	return db.txLog.List(ctx, fromTxID, count)
}

type SpaceStats struct {
	Sid        proto.Sid `json:"sid"`
	Name       string    `json:"name"`
	Partitions []uint64  `json:"partitions"`
}

type Stats struct {
	TxID       proto.TxID    `json:"tx_id"`
	Checkpoint proto.TxID    `json:"checkpoint"`
	Spaces     []SpaceStats  `json:"spaces"`
	KV         kvstore.Stats `json:"kv"`
}

func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	kvStats, err := db.kvStore.Stats(ctx)
	if err != nil {
		return nil, err
	}

	ret := &Stats{
		TxID:       db.txLog.TxID(),
		Checkpoint: db.txLog.Checkpoint(),
		KV:         kvStats,
	}
	for _, space := range db.catalog.AllSpaces() {
		counts := space.Stats()
		ret.Spaces = append(ret.Spaces, SpaceStats{Sid: space.Sid(), Name: space.Name(), Partitions: counts})
		for pid, count := range counts {
			metrics.PartitionEntities.WithLabelValues(space.Name(), strconv.Itoa(pid)).Set(float64(count))
		}
	}
	return ret, nil
}

func (db *DB) Close() {
	db.catalog.Close()
	db.kvStore.Close()
}

// refreshFacts rebuilds the engine's base fact set from storage when the
// log has moved past the last build. Concurrent callers share one rebuild.
func (db *DB) refreshFacts(ctx context.Context) error {
	target := db.txLog.TxID()
	if atomic.LoadUint64(&db.factsTxID) == target {
		return nil
	}

	_, err, _ := db.factsGroup.Do("facts", func() (interface{}, error) {
		if atomic.LoadUint64(&db.factsTxID) >= target {
			return nil, nil
		}

		var facts []query.Fact
		for _, space := range db.catalog.AllSpaces() {
			name := space.Name()
			err := space.Range(ctx, func(entity *proto.Entity) error {
				id := int64(entity.ID)
				facts = append(facts,
					query.Fact{Predicate: "entity", Args: []interface{}{name, id}},
					query.Fact{Predicate: "located", Args: []interface{}{name, id, int64(proto.PartitionOfEntity(entity.ID))}},
				)
				for i := range entity.Fields {
					facts = append(facts, query.Fact{
						Predicate: "field",
						Args:      []interface{}{name, id, entity.Fields[i].Name, string(entity.Fields[i].Value)},
					})
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
		if err := db.engine.Replace(ctx, facts); err != nil {
			return nil, err
		}
		atomic.StoreUint64(&db.factsTxID, target)
		return nil, nil
	})
	return err
}
