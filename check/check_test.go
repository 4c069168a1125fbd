package check

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/models"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCollector struct {
	queues []models.QueueObservation
	err    error
}

func (f *fakeCollector) FetchQueues(ctx context.Context) ([]models.QueueObservation, error) {
	return f.queues, f.err
}

type memoryStore struct {
	registry models.Registry
	loadErr  error
	saveErr  error
	saves    int
}

func (m *memoryStore) Load() (models.Registry, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.registry.Clone(), nil
}

func (m *memoryStore) Save(registry models.Registry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.registry = registry
	m.saves++
	return nil
}

func defaultCfg() config.CheckConfig {
	return config.CheckConfig{
		MaxCriticalMinutes: 10,
		MaxWarningMinutes:  3,
		AcceptedMax:        50,
	}
}

func newChecker(t *testing.T, collector models.Collector, store models.RegistryStore, cfg config.CheckConfig) *Checker {
	t.Helper()
	checker, err := New(collector, store, cfg)
	require.NoError(t, err)
	return checker
}

func TestFirstRunIsOK(t *testing.T) {
	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "depth", Messages: 120}}}
	store := &memoryStore{}
	checker := newChecker(t, collector, store, defaultCfg())

	result, err := checker.Run(context.Background(), t0)

	require.NoError(t, err)
	require.Equal(t, models.SeverityOK, result.Severity)
	require.Empty(t, result.Critical)
	require.Equal(t, int64(120), store.registry["depth"].LastValue)
	require.Equal(t, t0, store.registry["depth"].LastDecreaseAt)
}

func TestStuckQueueGoesCritical(t *testing.T) {
	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "depth", Messages: 650}}}
	store := &memoryStore{registry: models.Registry{
		"depth": {LastDecreaseAt: t0, LastValue: 600},
	}}
	checker := newChecker(t, collector, store, defaultCfg())

	result, err := checker.Run(context.Background(), t0.Add(15*time.Minute))

	require.NoError(t, err)
	require.Equal(t, models.SeverityCritical, result.Severity)
	require.Equal(t, map[string]int64{"depth": 650}, result.Critical)
	require.Equal(t, map[string]int64{"depth": 650}, result.Warning)
	require.Contains(t, result.Message, "depth (650)")
	require.Equal(t, t0, store.registry["depth"].LastDecreaseAt)
}

func TestConnectionFailureIsWarningNotCrash(t *testing.T) {
	collector := &fakeCollector{err: fmt.Errorf("%w: dial tcp: refused", models.ErrConnection)}
	store := &memoryStore{registry: models.Registry{
		"depth": {LastDecreaseAt: t0, LastValue: 600},
	}}
	checker := newChecker(t, collector, store, defaultCfg())

	result, err := checker.Run(context.Background(), t0.Add(time.Hour))

	require.NoError(t, err)
	require.Equal(t, models.SeverityWarning, result.Severity)
	// The registry must not be rewritten from a failed fetch.
	require.Zero(t, store.saves)
}

func TestCorruptRegistryReinitializesNeutrally(t *testing.T) {
	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "depth", Messages: 900}}}
	store := &memoryStore{loadErr: fmt.Errorf("%w: bad json", models.ErrRegistryLoad)}
	checker := newChecker(t, collector, store, defaultCfg())

	result, err := checker.Run(context.Background(), t0)

	require.NoError(t, err)
	require.Equal(t, models.SeverityOK, result.Severity)
	require.Equal(t, 1, store.saves)
	require.Equal(t, int64(900), store.registry["depth"].LastValue)
}

func TestWriteFailureSurfacesAsUnknown(t *testing.T) {
	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "depth", Messages: 120}}}
	store := &memoryStore{saveErr: fmt.Errorf("%w: disk full", models.ErrRegistryWrite)}
	checker := newChecker(t, collector, store, defaultCfg())

	result, err := checker.Run(context.Background(), t0)

	require.ErrorIs(t, err, models.ErrRegistryWrite)
	require.Equal(t, models.SeverityUnknown, result.Severity)
}

func TestAggregateThresholdIndependentOfTrend(t *testing.T) {
	cfg := defaultCfg()
	cfg.CritTotal = 1000

	// Both queues decreasing, so the trend path stays OK.
	collector := &fakeCollector{queues: []models.QueueObservation{
		{Name: "a", Messages: 600},
		{Name: "b", Messages: 500},
	}}
	store := &memoryStore{registry: models.Registry{
		"a": {LastDecreaseAt: t0, LastValue: 700},
		"b": {LastDecreaseAt: t0, LastValue: 800},
	}}
	checker := newChecker(t, collector, store, cfg)

	result, err := checker.Run(context.Background(), t0.Add(time.Hour))

	require.NoError(t, err)
	require.Equal(t, models.SeverityCritical, result.Severity)
	require.Empty(t, result.Critical)
	require.Contains(t, result.Message, "total backlog 1100")
}

func TestAggregateWarnTotal(t *testing.T) {
	cfg := defaultCfg()
	cfg.WarnTotal = 100
	cfg.CritTotal = 1000

	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "a", Messages: 120}}}
	store := &memoryStore{registry: models.Registry{
		"a": {LastDecreaseAt: t0, LastValue: 200},
	}}
	checker := newChecker(t, collector, store, cfg)

	result, err := checker.Run(context.Background(), t0.Add(time.Minute))

	require.NoError(t, err)
	require.Equal(t, models.SeverityWarning, result.Severity)
}

func TestExcludedQueueStaysOK(t *testing.T) {
	cfg := defaultCfg()
	cfg.QueueLevel = true
	cfg.ExcludedQueues = []string{"excluded"}

	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "excluded", Messages: 900}}}
	store := &memoryStore{registry: models.Registry{
		"excluded": {LastDecreaseAt: t0, LastValue: 600},
	}}
	checker := newChecker(t, collector, store, cfg)

	result, err := checker.Run(context.Background(), t0.Add(time.Hour))

	require.NoError(t, err)
	require.Equal(t, models.SeverityOK, result.Severity)
	require.Equal(t, int64(900), store.registry["excluded"].LastValue)
}

type captureRecorder struct {
	results []models.CheckResult
}

func (r *captureRecorder) RecordRun(result models.CheckResult, snapshot []models.QueueObservation) error {
	r.results = append(r.results, result)
	return nil
}

func TestRecorderSeesEveryRun(t *testing.T) {
	collector := &fakeCollector{queues: []models.QueueObservation{{Name: "depth", Messages: 120}}}
	store := &memoryStore{}
	recorder := &captureRecorder{}
	checker := newChecker(t, collector, store, defaultCfg()).WithRecorder(recorder)

	_, err := checker.Run(context.Background(), t0)
	require.NoError(t, err)
	_, err = checker.Run(context.Background(), t0.Add(time.Minute))
	require.NoError(t, err)

	require.Len(t, recorder.results, 2)
	require.NotEqual(t, recorder.results[0].RunID, recorder.results[1].RunID)
}
