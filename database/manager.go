package database

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customDatabaseCreators = sync.Map{}

func RegisterDatabaseManager(databaseType string, creator types.DatabaseManagerCreator) {
	customDatabaseCreators.Store(databaseType, creator)
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.DatabaseManager, error) {
	dbConfig := config.GetConfig().Database

	if dbConfig == nil {
		return nil, types.ErrDatabaseIsDisabled
	}

	databaseType := dbConfig.Type

	var impl types.DatabaseManager
	var err error

	switch databaseType {
	case "clover":
		impl, err = NewCloverDB(logger, dbConfig)
	case "memory":
		impl = NewMemoryDB(logger, dbConfig)
	default:
		creator, exists := customDatabaseCreators.Load(databaseType)
		if !exists {
			return nil, types.Errorf(types.ErrDatabaseTypeUnknown, "type: %s", databaseType)
		}
		impl, err = creator.(types.DatabaseManagerCreator)(dbConfig)
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedDatabaseManager(ctx, logger, metrics, dbConfig.Collections, impl), nil
}

type instrumentedDatabaseManager struct {
	ctx         context.Context
	impl        types.DatabaseManager
	logger      types.Logger
	metrics     types.MetricsManager
	collections []string
	state       atomic.Value
}

func newInstrumentedDatabaseManager(ctx context.Context, logger types.Logger, metrics types.MetricsManager, collections []string, impl types.DatabaseManager) types.DatabaseManager {
	instrumented := &instrumentedDatabaseManager{
		ctx:         ctx,
		impl:        impl,
		logger:      logger,
		metrics:     metrics,
		collections: collections,
	}

	instrumented.state.Store(StateStopped)
	return instrumented
}

func (dm *instrumentedDatabaseManager) Start() error {
	if !dm.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if dm.getState() == StateStarting {
			dm.setState(StateRunning)
		}
	}()

	if err := dm.impl.Start(); err != nil {
		dm.setState(StateStopped)
		return err
	}

	for _, name := range dm.collections {
		err := dm.impl.CreateCollection(name)
		if err != nil && !types.IsError(err, types.ErrDatabaseCollectionExists) {
			dm.setState(StateStopped)
			return types.WrapError(err, "failed to prepare collection "+name)
		}
	}

	dm.logger.Info("Database manager started", zap.Strings("collections", dm.collections))
	return nil
}

func (dm *instrumentedDatabaseManager) Stop() error {
	if !dm.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		dm.setState(StateStopped)
	}()

	if err := dm.impl.Stop(); err != nil {
		dm.logger.Error("Failed to stop database implementation", zap.Error(err))
		return err
	}

	dm.logger.Info("Database manager stopped gracefully")
	return nil
}

func (dm *instrumentedDatabaseManager) IsRunning() bool {
	return dm.getState() == StateRunning
}

func (dm *instrumentedDatabaseManager) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	start := time.Now()
	ids, err := dm.impl.CreateDocuments(ctx, request)
	dm.record("create", request.Collection, err, start)
	return ids, dm.wrap(err)
}

func (dm *instrumentedDatabaseManager) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	start := time.Now()
	docs, total, err := dm.impl.ReadDocuments(ctx, request)
	dm.record("read", request.Collection, err, start)
	return docs, total, dm.wrap(err)
}

func (dm *instrumentedDatabaseManager) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	start := time.Now()
	updated, err := dm.impl.UpdateDocuments(ctx, request)
	dm.record("update", request.Collection, err, start)
	return updated, dm.wrap(err)
}

func (dm *instrumentedDatabaseManager) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	start := time.Now()
	deleted, err := dm.impl.DeleteDocuments(ctx, request)
	dm.record("delete", request.Collection, err, start)
	return deleted, dm.wrap(err)
}

func (dm *instrumentedDatabaseManager) CreateCollection(collectionName string) error {
	return dm.impl.CreateCollection(collectionName)
}

func (dm *instrumentedDatabaseManager) DropCollection(collectionName string) error {
	return dm.impl.DropCollection(collectionName)
}

// wrap tags storage failures as upstream errors; caller mistakes keep their sentinel.
func (dm *instrumentedDatabaseManager) wrap(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{types.ErrDuplicate, types.ErrDocumentInvalid, types.ErrNotSupported} {
		if types.IsError(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w: %w", types.ErrUpstream, types.ErrDatabaseOperationFailed, err)
}

func (dm *instrumentedDatabaseManager) record(operation, collection string, err error, start time.Time) {
	if dm.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
		dm.logger.Error("Database operation failed",
			zap.String("operation", operation),
			zap.String("collection", collection),
			zap.Error(err))
	}

	dm.metrics.Counter("database_operations_total", map[string]string{
		"operation":  operation,
		"collection": collection,
		"result":     result,
	}).Inc()

	dm.metrics.Histogram("database_operation_duration_seconds",
		[]float64{0.0005, 0.005, 0.05, 0.5, 5},
		map[string]string{"operation": operation},
	).ObserveDuration(start)
}

func (dm *instrumentedDatabaseManager) getState() State {
	return dm.state.Load().(State)
}

func (dm *instrumentedDatabaseManager) setState(newState State) bool {
	currentState := dm.getState()
	return dm.state.CompareAndSwap(currentState, newState)
}

func (dm *instrumentedDatabaseManager) transitionState(from, to State) bool {
	return dm.state.CompareAndSwap(from, to)
}
