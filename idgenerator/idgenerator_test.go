package idgenerator

import (
	"context"
	"os"
	"testing"

	"github.com/listdb/listdb/common/kvstore"
	"github.com/listdb/listdb/util"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (kvstore.Store, func()) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	store, err := kvstore.NewKVStore(context.TODO(), path, kvstore.RocksdbLsmKVType, &kvstore.Option{CreateIfMissing: true})
	require.NoError(t, err)
	return store, func() {
		store.Close()
		os.RemoveAll(path)
	}
}

func TestIDGenerator_Alloc(t *testing.T) {
	store, clean := newTestStore(t)
	defer clean()

	g, err := NewIDGenerator(store)
	require.NoError(t, err)

	base, new, err := g.Alloc(context.TODO(), "list", 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), base)
	require.Equal(t, uint64(10), new)

	base, new, err = g.Alloc(context.TODO(), "list", 5)
	require.NoError(t, err)
	require.Equal(t, uint64(11), base)
	require.Equal(t, uint64(15), new)

	// scopes do not share cursors
	base, _, err = g.Alloc(context.TODO(), "item", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), base)

	_, _, err = g.Alloc(context.TODO(), "list", 0)
	require.Equal(t, ErrInvalidCount, err)

	require.Equal(t, uint64(15), g.Current("list"))
}

func TestIDGenerator_Reload(t *testing.T) {
	store, clean := newTestStore(t)
	defer clean()

	g, err := NewIDGenerator(store)
	require.NoError(t, err)
	_, _, err = g.Alloc(context.TODO(), "list", 100)
	require.NoError(t, err)

	// a fresh generator over the same store resumes past the persisted cursor
	g2, err := NewIDGenerator(store)
	require.NoError(t, err)
	base, _, err := g2.Alloc(context.TODO(), "list", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(101), base)
}

func TestIDGenerator_MaxCount(t *testing.T) {
	store, clean := newTestStore(t)
	defer clean()

	g, err := NewIDGenerator(store)
	require.NoError(t, err)
	base, new, err := g.Alloc(context.TODO(), "list", MaxCount+1)
	require.NoError(t, err)
	require.Equal(t, uint64(MaxCount), new-base+1)
}
