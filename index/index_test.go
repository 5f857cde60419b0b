package index

import (
	"context"
	"os"
	"testing"

	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/proto"
	"github.com/listdb/listdb/util"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*Index, kvstore.Store, func()) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	store, err := kvstore.NewKVStore(context.TODO(), path, kvstore.RocksdbLsmKVType, &kvstore.Option{CreateIfMissing: true})
	require.NoError(t, err)
	idx, err := NewIndex(store)
	require.NoError(t, err)
	return idx, store, func() {
		store.Close()
		os.RemoveAll(path)
	}
}

func TestIndex_Scan(t *testing.T) {
	idx, store, clean := newTestIndex(t)
	defer clean()
	ctx := context.TODO()

	batch := store.NewWriteBatch()
	idx.Put(batch, 1, "status", []byte("open"), 100)
	idx.Put(batch, 1, "status", []byte("open"), 7)
	idx.Put(batch, 1, "status", []byte("done"), 8)
	idx.Put(batch, 1, "status", []byte("opened"), 9)
	idx.Put(batch, 2, "status", []byte("open"), 10)
	require.NoError(t, store.Write(ctx, batch, nil))
	batch.Close()

	ids, err := idx.Scan(ctx, 1, "status", []byte("open"))
	require.NoError(t, err)
	require.Equal(t, []proto.EntityID{7, 100}, ids)

	// scan never crosses spaces or bleeds into longer values
	ids, err = idx.Scan(ctx, 2, "status", []byte("done"))
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestIndex_ScanField(t *testing.T) {
	idx, store, clean := newTestIndex(t)
	defer clean()
	ctx := context.TODO()

	batch := store.NewWriteBatch()
	idx.Put(batch, 1, "status", []byte("done"), 3)
	idx.Put(batch, 1, "status", []byte("open"), 1)
	idx.Put(batch, 1, "title", []byte("milk"), 2)
	require.NoError(t, store.Write(ctx, batch, nil))
	batch.Close()

	ids, values, err := idx.ScanField(ctx, 1, "status")
	require.NoError(t, err)
	require.Equal(t, []proto.EntityID{3, 1}, ids)
	require.Equal(t, [][]byte{[]byte("done"), []byte("open")}, values)
}

func TestIndex_Delete(t *testing.T) {
	idx, store, clean := newTestIndex(t)
	defer clean()
	ctx := context.TODO()

	batch := store.NewWriteBatch()
	idx.Put(batch, 1, "status", []byte("open"), 1)
	idx.Put(batch, 1, "status", []byte("open"), 2)
	require.NoError(t, store.Write(ctx, batch, nil))
	batch.Close()

	batch = store.NewWriteBatch()
	idx.Delete(batch, 1, "status", []byte("open"), 1)
	require.NoError(t, store.Write(ctx, batch, nil))
	batch.Close()

	ids, err := idx.Scan(ctx, 1, "status", []byte("open"))
	require.NoError(t, err)
	require.Equal(t, []proto.EntityID{2}, ids)
}

func TestIndex_DeleteSpace(t *testing.T) {
	idx, store, clean := newTestIndex(t)
	defer clean()
	ctx := context.TODO()

	batch := store.NewWriteBatch()
	idx.Put(batch, 1, "status", []byte("open"), 1)
	idx.Put(batch, 2, "status", []byte("open"), 2)
	idx.DeleteSpace(batch, 1)
	require.NoError(t, store.Write(ctx, batch, nil))
	batch.Close()

	ids, err := idx.Scan(ctx, 1, "status", []byte("open"))
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = idx.Scan(ctx, 2, "status", []byte("open"))
	require.NoError(t, err)
	require.Equal(t, []proto.EntityID{2}, ids)
}
