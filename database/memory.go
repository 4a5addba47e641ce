package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

type MemoryDB struct {
	collections map[string]map[string]map[string]interface{}
	mutex       sync.RWMutex
	logger      types.Logger
	config      *types.DatabaseConfig
	now         func() time.Time
	state       atomic.Value
}

func NewMemoryDB(logger types.Logger, config *types.DatabaseConfig) *MemoryDB {
	mdb := &MemoryDB{
		collections: make(map[string]map[string]map[string]interface{}),
		logger:      logger,
		config:      config,
		now:         time.Now,
	}

	mdb.state.Store(StateStopped)
	return mdb
}

func (m *MemoryDB) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("MemoryDB started")
	return nil
}

func (m *MemoryDB) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mutex.Lock()
	collections := len(m.collections)
	m.collections = make(map[string]map[string]map[string]interface{})
	m.mutex.Unlock()

	m.logger.Info("MemoryDB stopped gracefully", zap.Int("dropped_collections", collections))
	return nil
}

func (m *MemoryDB) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryDB) CreateCollection(collectionName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[collectionName]; exists {
		return types.ErrDatabaseCollectionExists
	}

	m.collections[collectionName] = make(map[string]map[string]interface{})
	return nil
}

func (m *MemoryDB) DropCollection(collectionName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.collections, collectionName)
	return nil
}

func (m *MemoryDB) CreateDocuments(_ context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		collection = make(map[string]map[string]interface{})
		m.collections[request.Collection] = collection
	}

	now := m.now()
	prepared := make([]map[string]interface{}, 0, len(request.Data))
	ids := make([]string, 0, len(request.Data))
	batch := make(map[string]struct{}, len(request.Data))

	for _, data := range request.Data {
		if data == nil {
			return nil, types.Errorf(types.ErrDocumentInvalid, "nil document")
		}

		doc := deepCopy(data)
		id := prepareDocument(doc, now)

		if _, taken := collection[id]; taken {
			return nil, types.Errorf(types.ErrDuplicate, "%s %s", request.Collection, id)
		}
		if _, taken := batch[id]; taken {
			return nil, types.Errorf(types.ErrDuplicate, "%s %s", request.Collection, id)
		}
		batch[id] = struct{}{}

		prepared = append(prepared, doc)
		ids = append(ids, id)
	}

	for i, doc := range prepared {
		collection[ids[i]] = doc
	}

	return ids, nil
}

func (m *MemoryDB) ReadDocuments(_ context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	docs := make([]map[string]interface{}, 0, len(collection))
	for _, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			docs = append(docs, deepCopy(doc))
		}
	}

	total := int64(len(docs))

	options := append(append([]types.SortOption(nil), request.Sort...), types.SortOption{Field: types.FieldID, Direction: types.SortAsc})
	sortDocuments(docs, options)

	if request.Skip > 0 {
		if request.Skip >= len(docs) {
			return []map[string]interface{}{}, total, nil
		}
		docs = docs[request.Skip:]
	}

	if request.Limit > 0 && request.Limit < len(docs) {
		docs = docs[:request.Limit]
	}

	return docs, total, nil
}

func (m *MemoryDB) UpdateDocuments(_ context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		if !request.Upsert {
			return 0, nil
		}
		collection = make(map[string]map[string]interface{})
		m.collections[request.Collection] = collection
	}

	var matching []string
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			matching = append(matching, id)
		}
	}

	now := m.now()

	if len(matching) == 0 {
		if !request.Upsert {
			return 0, nil
		}

		doc := make(map[string]interface{})
		if err := applyUpdateOperations(doc, request.Data); err != nil {
			return 0, err
		}
		id := prepareDocument(doc, now)
		collection[id] = doc
		return 1, nil
	}

	// Updates are applied to copies first so a failing operator leaves every document untouched.
	updated := make(map[string]map[string]interface{}, len(matching))
	for _, id := range matching {
		doc := deepCopy(collection[id])
		if err := applyUpdateOperations(doc, request.Data); err != nil {
			return 0, err
		}
		doc[types.FieldID] = id
		doc[types.FieldChangedTime] = now.UnixMilli()
		updated[id] = doc
	}

	for id, doc := range updated {
		collection[id] = doc
	}

	return int64(len(matching)), nil
}

func (m *MemoryDB) DeleteDocuments(_ context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		return 0, nil
	}

	var deleted int64
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			delete(collection, id)
			deleted++
		}
	}

	return deleted, nil
}

func (m *MemoryDB) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryDB) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryDB) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
