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

// Package txlog is the serial transaction log. Every mutation of the
// database goes through Append: the record is persisted first, then handed
// to the registered Applier, then the checkpoint advances. A crash between
// persist and apply is healed by Replay on the next open, so appliers must
// tolerate seeing a record twice.
package txlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/metrics"
	"github.com/listdb/listdb/proto"
	"github.com/listdb/listdb/util"
	"github.com/listdb/listdb/util/limiter"
)

const CF = kvstore.CF("txlog")

var (
	logPrefix     = []byte{'l'}
	checkpointKey = []byte{'c'}
)

// Record is one committed transaction. Records are readable data: List
// returns them in commit order, decoded.
type Record struct {
	TxID proto.TxID `json:"tx_id"`
	Time int64      `json:"time"`
	Ops  []proto.Op `json:"ops"`
}

// Applier consumes a committed record. Applies must be idempotent: a record
// may be re-delivered after a crash.
type Applier interface {
	Apply(ctx context.Context, rec *Record) error
}

type Log struct {
	txID       proto.TxID
	checkpoint proto.TxID

	kvStore kvstore.Store
	applier Applier
	limiter limiter.Limiter
	lock    sync.Mutex
}

func NewLog(kvStore kvstore.Store, lim limiter.Limiter) (*Log, error) {
	_, ctx := trace.StartSpanFromContext(context.Background(), "NewLog")

	if !kvStore.CheckColumns(CF) {
		if err := kvStore.CreateColumn(CF); err != nil {
			return nil, err
		}
	}

	l := &Log{kvStore: kvStore, limiter: lim}
	if err := l.load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// SetApplier registers the consumer of committed records. It must be called
// before Append or Replay.
func (l *Log) SetApplier(applier Applier) {
	l.applier = applier
}

// Append commits one transaction: persist the record, apply it, advance the
// checkpoint. Records commit strictly one at a time; the returned id is the
// record's position in the log.
func (l *Log) Append(ctx context.Context, ops []proto.Op) (proto.TxID, error) {
	span := trace.SpanFromContextSafe(ctx)

	if err := l.limiter.AcquireWrite(); err != nil {
		return 0, err
	}
	defer l.limiter.ReleaseWrite()

	l.lock.Lock()
	defer l.lock.Unlock()

	rec := &Record{
		TxID: l.txID + 1,
		Time: time.Now().UnixNano(),
		Ops:  ops,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, errors.Info(err, "marshal tx record failed")
	}
	if err := l.limiter.WaitWrite(ctx, len(data)); err != nil {
		return 0, err
	}

	wo := l.kvStore.NewWriteOption()
	wo.SetSync(true)
	err = l.kvStore.SetRaw(ctx, CF, encodeLogKey(rec.TxID), data, wo)
	wo.Close()
	if err != nil {
		span.Errorf("persist tx %d failed: %v", rec.TxID, err)
		return 0, err
	}
	l.txID = rec.TxID

	if err := l.applier.Apply(ctx, rec); err != nil {
		span.Errorf("apply tx %d failed: %v", rec.TxID, err)
		return 0, err
	}
	if err := l.advanceCheckpoint(ctx, rec.TxID); err != nil {
		return 0, err
	}

	span.Debugf("tx %d committed, %d ops", rec.TxID, len(ops))
	return rec.TxID, nil
}

// Replay re-applies every record past the checkpoint. Called once on open,
// before the database serves requests.
func (l *Log) Replay(ctx context.Context) error {
	span := trace.SpanFromContextSafe(ctx)

	l.lock.Lock()
	defer l.lock.Unlock()

	if l.checkpoint == l.txID {
		return nil
	}

	recs, err := l.listLocked(ctx, l.checkpoint+1, 0)
	if err != nil {
		return err
	}
	for i := range recs {
		if err := l.applier.Apply(ctx, &recs[i]); err != nil {
			return errors.Info(err, "replay tx failed").Detail(err)
		}
		if err := l.advanceCheckpoint(ctx, recs[i].TxID); err != nil {
			return err
		}
	}

	metrics.ReplayedRecords.Add(float64(len(recs)))
	span.Infof("replayed %d records, checkpoint now %d", len(recs), l.checkpoint)
	return nil
}

// List returns up to count records starting at fromTxID, in commit order.
// A count of 0 means all.
func (l *Log) List(ctx context.Context, fromTxID proto.TxID, count int) ([]Record, error) {
	if err := l.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer l.limiter.ReleaseRead()

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.listLocked(ctx, fromTxID, count)
}

// Truncate drops records before beforeTxID. The checkpoint never moves
// backwards, so truncating applied history is safe.
func (l *Log) Truncate(ctx context.Context, beforeTxID proto.TxID) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if beforeTxID > l.checkpoint+1 {
		beforeTxID = l.checkpoint + 1
	}
	batch := l.kvStore.NewWriteBatch()
	defer batch.Close()
	batch.DeleteRange(CF, encodeLogKey(1), encodeLogKey(beforeTxID))
	return l.kvStore.Write(ctx, batch, nil)
}

func (l *Log) TxID() proto.TxID {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.txID
}

func (l *Log) Checkpoint() proto.TxID {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.checkpoint
}

func (l *Log) load(ctx context.Context) error {
	v, err := l.kvStore.GetRaw(ctx, CF, checkpointKey, nil)
	if err != nil && err != kvstore.ErrNotFound {
		return err
	}
	if err == nil {
		l.checkpoint = proto.TxID(util.DecodeUint64(v))
	}

	lr := l.kvStore.List(ctx, CF, logPrefix, nil, nil)
	defer lr.Close()
	kg, vg, err := lr.ReadLast()
	if err != nil {
		return err
	}
	if kg != nil && vg != nil {
		l.txID = decodeLogKey(kg.Key())
		kg.Close()
		vg.Close()
	}
	return nil
}

func (l *Log) listLocked(ctx context.Context, fromTxID proto.TxID, count int) ([]Record, error) {
	lr := l.kvStore.List(ctx, CF, logPrefix, encodeLogKey(fromTxID), nil)
	defer lr.Close()

	var ret []Record
	for count == 0 || len(ret) < count {
		kg, vg, err := lr.ReadNext()
		if err != nil {
			return nil, errors.Info(err, "read next tx record failed")
		}
		if kg == nil || vg == nil {
			break
		}

		rec := Record{}
		if err := json.Unmarshal(vg.Value(), &rec); err != nil {
			kg.Close()
			vg.Close()
			return nil, errors.Info(err, "unmarshal tx record failed")
		}
		ret = append(ret, rec)
		kg.Close()
		vg.Close()
	}
	return ret, nil
}

func (l *Log) advanceCheckpoint(ctx context.Context, txID proto.TxID) error {
	v := make([]byte, 8)
	util.EncodeUint64(uint64(txID), v)
	if err := l.kvStore.SetRaw(ctx, CF, checkpointKey, v, nil); err != nil {
		return err
	}
	l.checkpoint = txID
	return nil
}

func encodeLogKey(txID proto.TxID) []byte {
	key := make([]byte, len(logPrefix)+8)
	copy(key, logPrefix)
	util.EncodeUint64(uint64(txID), key[len(logPrefix):])
	return key
}

func decodeLogKey(key []byte) proto.TxID {
	return proto.TxID(util.DecodeUint64(key[len(logPrefix):]))
}
