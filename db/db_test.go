package db

import (
	"context"
	"os"
	"strconv"
	"testing"

	apierrors "github.com/listdb/listdb/errors"
	"github.com/listdb/listdb/proto"
	"github.com/listdb/listdb/util"
	"github.com/stretchr/testify/require"
)

var (
	listFields = []proto.FieldMeta{
		{Name: "name", Type: proto.FieldTypeString, Indexed: true},
	}
	itemFields = []proto.FieldMeta{
		{Name: "list", Type: proto.FieldTypeNumber, Indexed: true},
		{Name: "title", Type: proto.FieldTypeString, Indexed: false},
		{Name: "status", Type: proto.FieldTypeString, Indexed: true},
	}
)

func openTestDB(t *testing.T, path string) *DB {
	db, err := Open(context.TODO(), &Config{Path: path})
	require.NoError(t, err)
	return db
}

func TestDB_TodoWorkload(t *testing.T) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	db := openTestDB(t, path)
	defer db.Close()
	ctx := context.TODO()

	_, err = db.CreateSpace(ctx, "lists", proto.SpaceTypeHash, "", listFields)
	require.NoError(t, err)
	_, err = db.CreateSpace(ctx, "items", proto.SpaceTypeHash, "", itemFields)
	require.NoError(t, err)

	listID, err := db.InsertEntity(ctx, "lists", &proto.Entity{Fields: []proto.Field{
		{Name: "name", Value: []byte("groceries")},
	}})
	require.NoError(t, err)

	listRef := []byte(strconv.FormatUint(listID, 10))
	var itemIDs []proto.EntityID
	for _, title := range []string{"milk", "eggs", "bread"} {
		id, err := db.InsertEntity(ctx, "items", &proto.Entity{Fields: []proto.Field{
			{Name: "list", Value: listRef},
			{Name: "title", Value: []byte(title)},
			{Name: "status", Value: []byte("open")},
		}})
		require.NoError(t, err)
		itemIDs = append(itemIDs, id)
	}

	// multi-op transaction: complete one item, delete another, atomically
	items, err := db.GetSpace(ctx, "items")
	require.NoError(t, err)
	updateOp, err := items.PrepareUpdate(ctx, &proto.Entity{ID: itemIDs[0], Fields: []proto.Field{
		{Name: "status", Value: []byte("done")},
	}})
	require.NoError(t, err)
	deleteOp, err := items.PrepareDelete(ctx, itemIDs[1])
	require.NoError(t, err)
	_, err = db.Transact(ctx, []proto.Op{updateOp, deleteOp})
	require.NoError(t, err)

	entity, err := db.GetEntity(ctx, "items", itemIDs[0])
	require.NoError(t, err)
	status, _ := entity.GetField("status")
	require.Equal(t, []byte("done"), status)

	_, err = db.GetEntity(ctx, "items", itemIDs[1])
	require.Equal(t, apierrors.ErrEntityDoesNotExist, err)

	// datalog over the base predicates plus a rule
	require.NoError(t, db.LoadRules(`
Decl open_item(Id) bound [/number].
open_item(Id) :- field("items", Id, "status", "open").
`))
	res, err := db.Query(ctx, "open_item(Id)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, int64(itemIDs[2]), res.Bindings[0]["Id"])

	// the transaction log is readable history
	recs, err := db.History(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, recs, 7)
	require.Equal(t, proto.OpCreateSpace, recs[0].Ops[0].Type)
	require.Len(t, recs[6].Ops, 2)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, proto.TxID(7), stats.TxID)
	require.Equal(t, stats.TxID, stats.Checkpoint)
	require.Len(t, stats.Spaces, 2)
}

func TestDB_QueryRefresh(t *testing.T) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	db := openTestDB(t, path)
	defer db.Close()
	ctx := context.TODO()

	_, err = db.CreateSpace(ctx, "items", proto.SpaceTypeHash, "", itemFields)
	require.NoError(t, err)

	_, err = db.InsertEntity(ctx, "items", &proto.Entity{Fields: []proto.Field{
		{Name: "status", Value: []byte("open")},
	}})
	require.NoError(t, err)

	res, err := db.Query(ctx, `field("items", Id, "status", "open")`)
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)

	// a later write shows up in the next query without reloading rules
	_, err = db.InsertEntity(ctx, "items", &proto.Entity{Fields: []proto.Field{
		{Name: "status", Value: []byte("open")},
	}})
	require.NoError(t, err)

	res, err = db.Query(ctx, `field("items", Id, "status", "open")`)
	require.NoError(t, err)
	require.Len(t, res.Bindings, 2)
}

func TestDB_Reopen(t *testing.T) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	db := openTestDB(t, path)
	ctx := context.TODO()

	_, err = db.CreateSpace(ctx, "items", proto.SpaceTypeHash, "", itemFields)
	require.NoError(t, err)
	id, err := db.InsertEntity(ctx, "items", &proto.Entity{Fields: []proto.Field{
		{Name: "title", Value: []byte("persisted")},
	}})
	require.NoError(t, err)
	db.Close()

	db2 := openTestDB(t, path)
	defer db2.Close()

	entity, err := db2.GetEntity(ctx, "items", id)
	require.NoError(t, err)
	title, _ := entity.GetField("title")
	require.Equal(t, []byte("persisted"), title)

	// ids never repeat across restarts
	id2, err := db2.InsertEntity(ctx, "items", &proto.Entity{Fields: []proto.Field{
		{Name: "title", Value: []byte("fresh")},
	}})
	require.NoError(t, err)
	require.NotEqual(t, proto.SeqOfEntity(id), proto.SeqOfEntity(id2))
}

func TestDB_GeoSpace(t *testing.T) {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	defer os.RemoveAll(path)

	db := openTestDB(t, path)
	defer db.Close()
	ctx := context.TODO()

	_, err = db.CreateSpace(ctx, "places", proto.SpaceTypeGeo, "loc", []proto.FieldMeta{
		{Name: "name", Type: proto.FieldTypeString, Indexed: false},
		{Name: "loc", Type: proto.FieldTypeLocation, Indexed: false},
	})
	require.NoError(t, err)

	berlin, err := (&proto.GeoPoint{Lat: 52.520008, Lng: 13.404954}).Marshal()
	require.NoError(t, err)
	nearby, err := (&proto.GeoPoint{Lat: 52.520050, Lng: 13.404990}).Marshal()
	require.NoError(t, err)

	id1, err := db.InsertEntity(ctx, "places", &proto.Entity{Fields: []proto.Field{
		{Name: "name", Value: []byte("tower")}, {Name: "loc", Value: berlin},
	}})
	require.NoError(t, err)
	id2, err := db.InsertEntity(ctx, "places", &proto.Entity{Fields: []proto.Field{
		{Name: "name", Value: []byte("gate")}, {Name: "loc", Value: nearby},
	}})
	require.NoError(t, err)
	require.Equal(t, proto.PartitionOfEntity(id1), proto.PartitionOfEntity(id2))

	// co-location is queryable
	require.NoError(t, db.LoadRules(`
Decl near(A, B) bound [/number, /number].
near(A, B) :- located("places", A, P), located("places", B, P), A < B.
`))
	res, err := db.Query(ctx, "near(A, B)")
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
}
