package database

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

// cloverIDField is clover's own object id, dropped from every document read.
const cloverIDField = "_id"

type CloverDB struct {
	db     *clover.DB
	logger types.Logger
	config *types.DatabaseConfig
	now    func() time.Time
	// clover has no multi-document transactions; writes are serialized here.
	writeMu sync.Mutex
	state   atomic.Value
}

func NewCloverDB(logger types.Logger, config *types.DatabaseConfig) (*CloverDB, error) {
	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, types.WrapError(err, "failed to create clover directory")
	}

	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	cdb := &CloverDB{
		db:     db,
		logger: logger,
		config: config,
		now:    time.Now,
	}

	cdb.state.Store(StateStopped)
	return cdb, nil
}

func (c *CloverDB) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	c.logger.Info("CloverDB started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverDB) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	c.logger.Info("CloverDB stopped gracefully")
	return nil
}

func (c *CloverDB) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverDB) CreateCollection(collectionName string) error {
	exists, err := c.db.HasCollection(collectionName)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if exists {
		return types.ErrDatabaseCollectionExists
	}

	if err := c.db.CreateCollection(collectionName); err != nil {
		return types.WrapError(err, "failed to create collection")
	}

	return nil
}

func (c *CloverDB) DropCollection(collectionName string) error {
	if err := c.db.DropCollection(collectionName); err != nil {
		return types.WrapError(err, "failed to drop collection")
	}

	return nil
}

func (c *CloverDB) CreateDocuments(_ context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ensureCollection(request.Collection); err != nil {
		return nil, err
	}

	now := c.now()
	docs := make([]*clover.Document, 0, len(request.Data))
	ids := make([]string, 0, len(request.Data))
	batch := make(map[string]struct{}, len(request.Data))

	for _, data := range request.Data {
		if data == nil {
			return nil, types.Errorf(types.ErrDocumentInvalid, "nil document")
		}

		fields := deepCopy(data)
		id := prepareDocument(fields, now)

		if _, taken := batch[id]; taken {
			return nil, types.Errorf(types.ErrDuplicate, "%s %s", request.Collection, id)
		}
		batch[id] = struct{}{}

		count, err := c.db.Query(request.Collection).Where(clover.Field(types.FieldID).Eq(id)).Count()
		if err != nil {
			return nil, types.WrapError(err, "failed to check document id")
		}
		if count > 0 {
			return nil, types.Errorf(types.ErrDuplicate, "%s %s", request.Collection, id)
		}

		doc := clover.NewDocument()
		for key, value := range fields {
			doc.Set(key, value)
		}

		docs = append(docs, doc)
		ids = append(ids, id)
	}

	if err := c.db.Insert(request.Collection, docs...); err != nil {
		return nil, types.WrapError(err, "failed to insert documents")
	}

	return ids, nil
}

func (c *CloverDB) ReadDocuments(_ context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	query := c.applyFilters(c.db.Query(request.Collection), request.Filter)

	if len(request.Sort) > 0 {
		options := make([]clover.SortOption, 0, len(request.Sort))
		for _, option := range request.Sort {
			options = append(options, clover.SortOption{Field: option.Field, Direction: option.Direction})
		}
		query = query.Sort(options...)
	}

	if request.Skip > 0 {
		query = query.Skip(request.Skip)
	}

	if request.Limit > 0 {
		query = query.Limit(request.Limit)
	}

	cloverDocs, err := query.FindAll()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to find documents")
	}

	totalCount, err := c.applyFilters(c.db.Query(request.Collection), request.Filter).Count()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to count documents")
	}

	results := make([]map[string]interface{}, 0, len(cloverDocs))
	for _, doc := range cloverDocs {
		docMap := make(map[string]interface{})
		if err := doc.Unmarshal(&docMap); err != nil {
			c.logger.Warn("Skipping undecodable document",
				zap.String("collection", request.Collection),
				zap.Error(err))
			continue
		}

		delete(docMap, cloverIDField)
		results = append(results, docMap)
	}

	return results, int64(totalCount), nil
}

// UpdateDocuments applies operators document by document so $inc and $unset
// see the stored values; clover's bulk Update only assigns fields.
func (c *CloverDB) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if request.Upsert {
		if err := c.ensureCollection(request.Collection); err != nil {
			return 0, err
		}
	} else {
		exists, err := c.db.HasCollection(request.Collection)
		if err != nil {
			return 0, types.WrapError(err, "failed to check collection existence")
		}
		if !exists {
			return 0, nil
		}
	}

	cloverDocs, err := c.applyFilters(c.db.Query(request.Collection), request.Filter).FindAll()
	if err != nil {
		return 0, types.WrapError(err, "failed to find documents")
	}

	now := c.now()

	if len(cloverDocs) == 0 {
		if !request.Upsert {
			return 0, nil
		}

		fields := make(map[string]interface{})
		if err := applyUpdateOperations(fields, request.Data); err != nil {
			return 0, err
		}
		prepareDocument(fields, now)

		doc := clover.NewDocument()
		for key, value := range fields {
			doc.Set(key, value)
		}

		if err := c.db.Insert(request.Collection, doc); err != nil {
			return 0, types.WrapError(err, "failed to insert upserted document")
		}
		return 1, nil
	}

	pending := make(map[string]map[string]interface{}, len(cloverDocs))
	for _, doc := range cloverDocs {
		current := make(map[string]interface{})
		if err := doc.Unmarshal(&current); err != nil {
			return 0, types.WrapError(err, "failed to decode document")
		}
		delete(current, cloverIDField)

		id, _ := current[types.FieldID].(string)
		before := deepCopy(current)

		if err := applyUpdateOperations(current, request.Data); err != nil {
			return 0, err
		}
		current[types.FieldID] = id
		current[types.FieldChangedTime] = now.UnixMilli()

		for key := range before {
			if _, kept := current[key]; !kept {
				current[key] = nil
			}
		}

		pending[id] = current
	}

	for id, fields := range pending {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		err := c.db.Query(request.Collection).Where(clover.Field(types.FieldID).Eq(id)).Update(fields)
		if err != nil {
			return 0, types.WrapError(err, "failed to update documents")
		}
	}

	return int64(len(pending)), nil
}

func (c *CloverDB) DeleteDocuments(_ context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return 0, nil
	}

	query := c.applyFilters(c.db.Query(request.Collection), request.Filter)

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}

	if count == 0 {
		return 0, nil
	}

	if err := query.Delete(); err != nil {
		return 0, types.WrapError(err, "failed to delete documents")
	}

	return int64(count), nil
}

func (c *CloverDB) ensureCollection(name string) error {
	exists, err := c.db.HasCollection(name)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := c.db.CreateCollection(name); err != nil {
			return types.WrapError(err, "failed to create collection")
		}
	}

	return nil
}

func (c *CloverDB) applyFilters(query *clover.Query, filter map[string]interface{}) *clover.Query {
	for key, value := range filter {
		query = c.applyFieldFilter(query, key, value)
	}
	return query
}

func (c *CloverDB) applyFieldFilter(query *clover.Query, key string, value interface{}) *clover.Query {
	operators, ok := value.(map[string]interface{})
	if !ok || !isOperatorMap(operators) {
		return query.Where(clover.Field(key).Eq(value))
	}

	for op, opValue := range operators {
		switch op {
		case "$eq":
			query = query.Where(clover.Field(key).Eq(opValue))
		case "$ne":
			query = query.Where(clover.Field(key).Neq(opValue))
		case "$gt":
			query = query.Where(clover.Field(key).Gt(opValue))
		case "$gte":
			query = query.Where(clover.Field(key).GtEq(opValue))
		case "$lt":
			query = query.Where(clover.Field(key).Lt(opValue))
		case "$lte":
			query = query.Where(clover.Field(key).LtEq(opValue))
		case "$in":
			query = query.Where(clover.Field(key).In(toInterfaceSlice(opValue)...))
		case "$nin":
			query = query.Where(clover.Field(key).In(toInterfaceSlice(opValue)...).Not())
		case "$exists":
			if exists, _ := opValue.(bool); exists {
				query = query.Where(clover.Field(key).Exists())
			} else {
				query = query.Where(clover.Field(key).NotExists())
			}
		case "$regex":
			pattern, _ := opValue.(string)
			if options, _ := operators["$options"].(string); strings.Contains(options, "i") {
				pattern = "(?i)" + pattern
			}
			query = query.Where(clover.Field(key).Like(pattern))
		case "$options":
		default:
			c.logger.Warn("Unsupported filter operator", zap.String("field", key), zap.String("operator", op))
		}
	}

	return query
}

func toInterfaceSlice(value interface{}) []interface{} {
	switch list := value.(type) {
	case []interface{}:
		return list
	case []string:
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = item
		}
		return out
	}
	return nil
}

func (c *CloverDB) getState() State {
	return c.state.Load().(State)
}

func (c *CloverDB) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverDB) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
