package types

import (
	"context"
)

const (
	FieldID          = "internal_id"
	FieldCreatedTime = "cr_time"
	FieldChangedTime = "ch_time"
)

const (
	SortAsc  = 1
	SortDesc = -1
)

type DatabaseManager interface {
	LifecycleManager
	CreateCollection(collectionName string) error
	DropCollection(collectionName string) error
	CreateDocuments(ctx context.Context, request CreateDocumentsRequest) ([]string, error)
	ReadDocuments(ctx context.Context, request ReadDocumentsRequest) ([]map[string]interface{}, int64, error)
	UpdateDocuments(ctx context.Context, request UpdateDocumentsRequest) (int64, error)
	DeleteDocuments(ctx context.Context, request DeleteDocumentsRequest) (int64, error)
}

type DatabaseManagerCreator func(config *DatabaseConfig) (DatabaseManager, error)

type SortOption struct {
	Field     string
	Direction int
}

type CreateDocumentsRequest struct {
	Collection string
	Data       []map[string]interface{}
}

// ReadDocumentsRequest filters with equality or Mongo-style operators:
// $eq $ne $gt $gte $lt $lte $in $nin $exists $regex.
type ReadDocumentsRequest struct {
	Collection string
	Filter     map[string]interface{}
	Sort       []SortOption
	Skip       int
	Limit      int
}

// UpdateDocumentsRequest.Data accepts $set, $inc and $unset operators.
type UpdateDocumentsRequest struct {
	Collection string
	Filter     map[string]interface{}
	Data       map[string]interface{}
	Upsert     bool
}

type DeleteDocumentsRequest struct {
	Collection string
	Filter     map[string]interface{}
}
