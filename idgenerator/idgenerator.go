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

package idgenerator

import (
	"context"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/listdb/listdb/common/kvstore"
)

var (
	MaxCount = 1000000

	ErrInvalidCount = errors.New("request count is invalid")
)

// IDGenerator hands out ranges of monotonically increasing ids per named
// scope. The cursor is persisted before a range is returned, so ids never
// repeat across restarts.
type IDGenerator interface {
	Alloc(ctx context.Context, name string, count int) (base, new uint64, err error)
	Current(name string) uint64
}

type idGenerator struct {
	scopeItems map[string]uint64

	storage *storage
	lock    sync.Mutex
}

func NewIDGenerator(kvStore kvstore.Store) (IDGenerator, error) {
	_, ctx := trace.StartSpanFromContext(context.Background(), "NewIDGenerator")

	storage := &storage{kvStore: kvStore}
	if err := storage.CreateCF(); err != nil {
		return nil, err
	}
	scopeItems, err := storage.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &idGenerator{storage: storage, scopeItems: scopeItems}, nil
}

// Alloc returns the inclusive range (base, base+count-1] shifted by one:
// base is the first usable id and new is the last one.
func (s *idGenerator) Alloc(ctx context.Context, name string, count int) (base, new uint64, err error) {
	span := trace.SpanFromContextSafe(ctx)
	if count <= 0 {
		return 0, 0, ErrInvalidCount
	}

	if count > MaxCount {
		count = MaxCount
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	current := s.scopeItems[name]
	newCurrent := current + uint64(count)
	if err = s.storage.Put(ctx, name, newCurrent); err != nil {
		span.Errorf("put id failed, name %s, err: %v", name, err)
		return 0, 0, err
	}
	s.scopeItems[name] = newCurrent

	span.Debugf("alloc success, name %s, base %d, new %d", name, current+1, newCurrent)
	return current + 1, newCurrent, nil
}

func (s *idGenerator) Current(name string) uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.scopeItems[name]
}
