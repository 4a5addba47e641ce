package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-shop/types"
	"github.com/saiset-co/sai-shop/utils"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
)

// Specs use five fields with an optional leading seconds field, or descriptors like "@every 1m".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*types.JobEntry
	state           atomic.Value
	mu              sync.RWMutex
	shutdownTimeout time.Duration
}

func NewManager(ctx context.Context, config *types.CronConfig, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrCronIsDisabled
	}

	timezone, err := time.LoadLocation(config.Timezone)
	if err != nil {
		logger.Warn("Unknown cron timezone, falling back to UTC",
			zap.String("timezone", config.Timezone),
			zap.Error(err))
		timezone = time.UTC
	}

	cronLogger := cronLogger{logger: logger}
	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:            make(map[string]*types.JobEntry),
		timezone:        timezone,
		shutdownTimeout: 10 * time.Second,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	schedule, err := parser.Parse(spec)
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "%s", jobName)
	}

	entry := &types.JobEntry{
		Name:    jobName,
		Spec:    spec,
		Job:     job,
		AddedAt: time.Now(),
	}

	entryID, err := m.cron.AddFunc(spec, func() { m.run(entry) })
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	entry.ID = entryID
	entry.NextRun = schedule.Next(time.Now().In(m.timezone))
	m.jobs[jobName] = entry

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "%s", jobName)
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

// Run executes a registered job immediately, outside its schedule.
func (m *Manager) Run(jobName string) error {
	m.mu.RLock()
	entry, exists := m.jobs[jobName]
	m.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "%s", jobName)
	}

	m.run(entry)
	return nil
}

// Jobs returns a snapshot of every job sorted by name.
func (m *Manager) Jobs() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		snapshot := *entry
		if cronEntry := m.cron.Entry(entry.ID); !cronEntry.Next.IsZero() {
			snapshot.NextRun = cronEntry.Next
		}
		jobs = append(jobs, snapshot)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateRunning) {
		return types.ErrServiceIsRunning
	}

	m.cron.Start()
	m.setSchedulerStatus(1)

	m.logger.Info("Cron manager started",
		zap.String("timezone", m.timezone.String()),
		zap.Int("jobs", len(m.Jobs())))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopped) {
		return types.ErrServiceIsNotRunning
	}

	defer m.cancel()
	m.setSchedulerStatus(0)

	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
		m.logger.Info("Cron manager stopped")
		return nil
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, jobs still running")
		return types.Errorf(types.ErrComponentStopFailed, "cron jobs did not finish within %v", m.shutdownTimeout)
	}
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) RegisterRoutes(router types.HTTPRouter) {
	group := router.Group("/api/v1/cron").WithMiddlewares("admin")

	group.GET("/jobs", func(ctx *types.RequestCtx) {
		utils.WriteJSON(ctx, 200, map[string]interface{}{
			"success": true,
			"jobs":    m.Jobs(),
		})
	})

	group.POST("/{job}/run", func(ctx *types.RequestCtx) {
		if err := m.Run(utils.PathParam(ctx, "job")); err != nil {
			if types.IsError(err, types.ErrCronJobNotFound) {
				err = types.Errorf(types.ErrNotFound, "Job not found")
			}
			utils.WriteError(ctx, err)
			return
		}
		utils.WriteMessage(ctx, 200, true, "Job executed")
	})
}

func (m *Manager) run(entry *types.JobEntry) {
	start := time.Now()
	result := "success"

	func() {
		defer func() {
			if r := recover(); r != nil {
				result = "panic"
				m.mu.Lock()
				entry.PanicCount++
				m.mu.Unlock()
				m.logger.Error("Cron job panicked",
					zap.String("job_name", entry.Name),
					zap.Any("panic", r))
			}
		}()
		entry.Job()
	}()

	duration := time.Since(start)

	m.mu.Lock()
	entry.LastRun = start
	entry.LastDuration = duration
	entry.RunCount++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Counter("cron_job_runs_total", map[string]string{
			"job":    entry.Name,
			"result": result,
		}).Inc()
		m.metrics.Histogram("cron_job_duration_seconds", nil, map[string]string{
			"job": entry.Name,
		}).Observe(duration.Seconds())
	}

	m.logger.Info("Cron job completed",
		zap.String("job_name", entry.Name),
		zap.String("result", result),
		zap.Duration("duration", duration))
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics != nil {
		m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
	}
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

// cronLogger adapts types.Logger to cron.Logger.
type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	result := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		result = append(result, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return result
}
