package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-shop/logger"
	"github.com/saiset-co/sai-shop/types"
)

func newTestMemoryDB(t *testing.T) *MemoryDB {
	t.Helper()

	db := NewMemoryDB(logger.NewNop(), &types.DatabaseConfig{Type: "memory"})
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Stop() })
	return db
}

func seedProducts(t *testing.T, db *MemoryDB) []string {
	t.Helper()

	ids, err := db.CreateDocuments(context.Background(), types.CreateDocumentsRequest{
		Collection: "products",
		Data: []map[string]interface{}{
			{"name": "Gaming Laptop", "price": 1200.0, "stock": int64(3), "category": "laptop"},
			{"name": "Office Laptop", "price": 650.0, "stock": int64(0), "category": "laptop"},
			{"name": "Phone", "price": 300.0, "stock": int64(10), "category": "mobile"},
		},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	return ids
}

func TestMemoryDBCreateAssignsIDsAndTimestamps(t *testing.T) {
	db := newTestMemoryDB(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	ids, err := db.CreateDocuments(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data: []map[string]interface{}{
			{"internal_id": "firebase-uid", "name": "Ann"},
			{"name": "Bob"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "firebase-uid", ids[0])
	assert.NotEmpty(t, ids[1])

	docs, total, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
		Collection: "users",
		Filter:     map[string]interface{}{"internal_id": "firebase-uid"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, now.UnixMilli(), docs[0][types.FieldCreatedTime])
	assert.Equal(t, now.UnixMilli(), docs[0][types.FieldChangedTime])
}

func TestMemoryDBRejectsDuplicateIDs(t *testing.T) {
	db := newTestMemoryDB(t)
	ctx := context.Background()

	_, err := db.CreateDocuments(ctx, types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []map[string]interface{}{{"internal_id": "u1"}},
	})
	require.NoError(t, err)

	_, err = db.CreateDocuments(ctx, types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []map[string]interface{}{{"internal_id": "u1"}},
	})
	assert.ErrorIs(t, err, types.ErrDuplicate)
}

func TestMemoryDBFilters(t *testing.T) {
	db := newTestMemoryDB(t)
	seedProducts(t, db)

	tests := []struct {
		name   string
		filter map[string]interface{}
		want   int64
	}{
		{"equality", map[string]interface{}{"category": "laptop"}, 2},
		{"numeric equality across types", map[string]interface{}{"stock": 3}, 1},
		{"lte", map[string]interface{}{"price": map[string]interface{}{"$lte": 650}}, 2},
		{"range", map[string]interface{}{"price": map[string]interface{}{"$gt": 300, "$lt": 1200}}, 1},
		{"ne", map[string]interface{}{"category": map[string]interface{}{"$ne": "laptop"}}, 1},
		{"in strings", map[string]interface{}{"category": map[string]interface{}{"$in": []string{"mobile", "tv"}}}, 1},
		{"nin", map[string]interface{}{"category": map[string]interface{}{"$nin": []interface{}{"mobile"}}}, 2},
		{"regex case insensitive", map[string]interface{}{"name": map[string]interface{}{"$regex": "laptop", "$options": "i"}}, 2},
		{"regex case sensitive", map[string]interface{}{"name": map[string]interface{}{"$regex": "laptop"}}, 0},
		{"exists", map[string]interface{}{"photos": map[string]interface{}{"$exists": false}}, 3},
		{"unknown operator", map[string]interface{}{"price": map[string]interface{}{"$near": 1}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
				Collection: "products",
				Filter:     tt.filter,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}
}

func TestMemoryDBSortSkipLimit(t *testing.T) {
	db := newTestMemoryDB(t)
	seedProducts(t, db)

	docs, total, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
		Collection: "products",
		Sort:       []types.SortOption{{Field: "price", Direction: types.SortDesc}},
		Skip:       1,
		Limit:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, docs, 1)
	assert.Equal(t, "Office Laptop", docs[0]["name"])
}

func TestMemoryDBUpdateOperators(t *testing.T) {
	db := newTestMemoryDB(t)
	ctx := context.Background()
	ids := seedProducts(t, db)

	updated, err := db.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
		Collection: "products",
		Filter:     map[string]interface{}{"internal_id": ids[0]},
		Data: map[string]interface{}{
			"$inc":   map[string]interface{}{"stock": -2},
			"$set":   map[string]interface{}{"name": "Gaming Laptop v2"},
			"$unset": map[string]interface{}{"category": ""},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	docs, _, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: "products",
		Filter:     map[string]interface{}{"internal_id": ids[0]},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(1), docs[0]["stock"])
	assert.Equal(t, "Gaming Laptop v2", docs[0]["name"])
	assert.NotContains(t, docs[0], "category")
}

func TestMemoryDBUpdateFailureLeavesDocumentsUntouched(t *testing.T) {
	db := newTestMemoryDB(t)
	ctx := context.Background()
	ids := seedProducts(t, db)

	_, err := db.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
		Collection: "products",
		Filter:     map[string]interface{}{"internal_id": ids[0]},
		Data:       map[string]interface{}{"$inc": map[string]interface{}{"name": 1}},
	})
	assert.ErrorIs(t, err, types.ErrDocumentInvalid)

	docs, _, _ := db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: "products",
		Filter:     map[string]interface{}{"internal_id": ids[0]},
	})
	assert.Equal(t, "Gaming Laptop", docs[0]["name"])
}

func TestMemoryDBUpsert(t *testing.T) {
	db := newTestMemoryDB(t)

	updated, err := db.UpdateDocuments(context.Background(), types.UpdateDocumentsRequest{
		Collection: "coupons",
		Filter:     map[string]interface{}{"code": "SAVE10"},
		Data:       map[string]interface{}{"$set": map[string]interface{}{"code": "SAVE10", "amount": 10}},
		Upsert:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	_, total, _ := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{Collection: "coupons"})
	assert.Equal(t, int64(1), total)
}

func TestMemoryDBDelete(t *testing.T) {
	db := newTestMemoryDB(t)
	seedProducts(t, db)

	deleted, err := db.DeleteDocuments(context.Background(), types.DeleteDocumentsRequest{
		Collection: "products",
		Filter:     map[string]interface{}{"category": "laptop"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = db.DeleteDocuments(context.Background(), types.DeleteDocumentsRequest{
		Collection: "missing",
	})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMemoryDBReturnsCopies(t *testing.T) {
	db := newTestMemoryDB(t)
	ids := seedProducts(t, db)

	req := types.ReadDocumentsRequest{Collection: "products", Filter: map[string]interface{}{"internal_id": ids[0]}}
	docs, _, _ := db.ReadDocuments(context.Background(), req)
	docs[0]["name"] = "mutated"

	docs, _, _ = db.ReadDocuments(context.Background(), req)
	assert.Equal(t, "Gaming Laptop", docs[0]["name"])
}
