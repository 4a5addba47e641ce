package repository

import (
	"context"
	"sort"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

// Entity is a stored record that exposes its id.
type Entity interface {
	GetID() string
}

// Query narrows a Find call. Zero values mean no filter, no ordering and no paging.
type Query struct {
	Filter map[string]interface{}
	Sort   []types.SortOption
	Skip   int
	Limit  int
}

// Collection is a typed view over one database collection.
type Collection[T Entity] struct {
	db   types.DatabaseManager
	name string
}

func NewCollection[T Entity](db types.DatabaseManager, name string) *Collection[T] {
	return &Collection[T]{db: db, name: name}
}

func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) Find(ctx context.Context, query Query) ([]T, error) {
	items, _, err := c.FindPage(ctx, query)
	return items, err
}

// FindPage returns one page and the number of records matching the filter.
func (c *Collection[T]) FindPage(ctx context.Context, query Query) ([]T, int64, error) {
	docs, total, err := c.db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: c.name,
		Filter:     query.Filter,
		Sort:       query.Sort,
		Skip:       query.Skip,
		Limit:      query.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	items, err := decodeAll[T](docs)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (c *Collection[T]) FindOne(ctx context.Context, filter map[string]interface{}) (T, error) {
	var zero T

	items, err := c.Find(ctx, Query{Filter: filter, Limit: 1})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, types.Errorf(types.ErrNotFound, "%s", c.name)
	}

	return items[0], nil
}

// FindByID reports ErrNotFound for an empty or unknown id.
func (c *Collection[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, types.Errorf(types.ErrInvalidID, "%s id is empty", c.name)
	}

	item, err := c.FindOne(ctx, map[string]interface{}{types.FieldID: id})
	if types.IsError(err, types.ErrNotFound) {
		return zero, types.Errorf(types.ErrNotFound, "%s %s", c.name, id)
	}
	return item, err
}

// Create stores entity and returns it as persisted, with id and timestamps filled in.
func (c *Collection[T]) Create(ctx context.Context, entity T) (T, error) {
	var zero T

	doc, err := utils.ToMap(entity)
	if err != nil {
		return zero, types.WrapError(err, "failed to encode "+c.name)
	}
	if id, _ := doc[types.FieldID].(string); id == "" {
		delete(doc, types.FieldID)
	}

	ids, err := c.db.CreateDocuments(ctx, types.CreateDocumentsRequest{
		Collection: c.name,
		Data:       []map[string]interface{}{doc},
	})
	if err != nil {
		return zero, err
	}

	return c.FindByID(ctx, ids[0])
}

// Save writes every field of entity except its id and creation time.
func (c *Collection[T]) Save(ctx context.Context, entity T) error {
	id := entity.GetID()
	if id == "" {
		return types.Errorf(types.ErrInvalidID, "%s id is empty", c.name)
	}

	doc, err := utils.ToMap(entity)
	if err != nil {
		return types.WrapError(err, "failed to encode "+c.name)
	}
	delete(doc, types.FieldID)
	delete(doc, types.FieldCreatedTime)
	delete(doc, types.FieldChangedTime)

	return c.Update(ctx, id, map[string]interface{}{"$set": doc})
}

// Update applies raw update operators to a single record.
func (c *Collection[T]) Update(ctx context.Context, id string, update map[string]interface{}) error {
	updated, err := c.db.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
		Collection: c.name,
		Filter:     map[string]interface{}{types.FieldID: id},
		Data:       update,
	})
	if err != nil {
		return err
	}
	if updated == 0 {
		return types.Errorf(types.ErrNotFound, "%s %s", c.name, id)
	}
	return nil
}

func (c *Collection[T]) DeleteOne(ctx context.Context, id string) error {
	deleted, err := c.db.DeleteDocuments(ctx, types.DeleteDocumentsRequest{
		Collection: c.name,
		Filter:     map[string]interface{}{types.FieldID: id},
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return types.Errorf(types.ErrNotFound, "%s %s", c.name, id)
	}
	return nil
}

func (c *Collection[T]) Count(ctx context.Context, filter map[string]interface{}) (int64, error) {
	_, total, err := c.db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: c.name,
		Filter:     filter,
		Limit:      1,
	})
	return total, err
}

// Distinct returns the sorted unique string values of field.
func (c *Collection[T]) Distinct(ctx context.Context, field string) ([]string, error) {
	docs, _, err := c.db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: c.name,
		Filter:     map[string]interface{}{field: map[string]interface{}{"$exists": true}},
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, doc := range docs {
		value, ok := doc[field].(string)
		if !ok {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		values = append(values, value)
	}

	sort.Strings(values)
	return values, nil
}

func decodeAll[T any](docs []map[string]interface{}) ([]T, error) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := utils.FromMap(doc, &item); err != nil {
			return nil, types.Errorf(types.ErrDocumentInvalid, "%v", err)
		}
		items = append(items, item)
	}
	return items, nil
}
