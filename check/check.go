// Package check runs one monitoring pass: collect a snapshot, merge it into
// the persisted registry, classify severities, and persist the result.
package check

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/queuewatch/queuewatch/config"
	"github.com/queuewatch/queuewatch/models"
	"github.com/queuewatch/queuewatch/trend"
)

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queuewatch_queue_depth",
			Help: "Broker-reported message count per queue",
		},
		[]string{"queue"},
	)

	queueStuckSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queuewatch_queue_stuck_seconds",
			Help: "Seconds since the queue's depth last decreased",
		},
		[]string{"queue"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuewatch_runs_total",
			Help: "Check runs by resulting severity",
		},
		[]string{"severity"},
	)

	lastRunSeverity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queuewatch_last_run_severity",
			Help: "Severity of the most recent run (0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN)",
		},
	)
)

// Recorder receives the outcome of each run. Implementations are optional
// and best-effort.
type Recorder interface {
	RecordRun(result models.CheckResult, snapshot []models.QueueObservation) error
}

type Checker struct {
	collector models.Collector
	store     models.RegistryStore
	recorder  Recorder

	opts      trend.Options
	warnTotal int64
	critTotal int64

	snow *snowflake.Node
}

func New(collector models.Collector, store models.RegistryStore, cfg config.CheckConfig) (*Checker, error) {
	snow, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedQueues))
	for _, name := range cfg.ExcludedQueues {
		excluded[name] = struct{}{}
	}

	return &Checker{
		collector: collector,
		store:     store,
		opts: trend.Options{
			MaxCriticalMinutes: cfg.MaxCriticalMinutes,
			MaxWarningMinutes:  cfg.MaxWarningMinutes,
			AcceptedMax:        cfg.AcceptedMax,
			QueueLevel:         cfg.QueueLevel,
			Excluded:           excluded,
			PruneAfter:         time.Duration(cfg.PruneAfterMinutes) * time.Minute,
		},
		warnTotal: cfg.WarnTotal,
		critTotal: cfg.CritTotal,
		snow:      snow,
	}, nil
}

// WithRecorder attaches a run recorder.
func (c *Checker) WithRecorder(recorder Recorder) *Checker {
	c.recorder = recorder
	return c
}

// Run performs one check at the given instant. now is injected so callers and
// tests control elapsed time. A non-nil error means the updated registry
// could not be persisted; the accompanying result carries SeverityUnknown.
func (c *Checker) Run(ctx context.Context, now time.Time) (models.CheckResult, error) {
	result := models.CheckResult{
		RunID: c.snow.Generate().Int64(),
		At:    now,
	}

	snapshot, err := c.collector.FetchQueues(ctx)
	if err != nil {
		// Degraded, not broken: the scheduler keeps invoking us.
		result.Severity = models.SeverityWarning
		result.Message = fmt.Sprintf("WARNING: %v", err)
		c.finish(result, snapshot)
		return result, nil
	}

	recovered := false
	prior, err := c.store.Load()
	if err != nil {
		// Corrupt or unreadable state: rebuild from this snapshot and stay
		// neutral for one run.
		log.Warn().Err(err).Msg("Registry unreadable, reinitializing")
		prior = models.Registry{}
		recovered = true
	}

	updated, critical, warning := trend.Evaluate(snapshot, prior, now, c.opts)

	if err := c.store.Save(updated); err != nil {
		// Dropping this silently would make the next run treat every queue
		// as first-seen.
		result.Severity = models.SeverityUnknown
		result.Message = fmt.Sprintf("UNKNOWN: %v", err)
		c.finish(result, snapshot)
		return result, err
	}

	result.Critical = critical
	result.Warning = warning

	if recovered {
		result.Severity = models.SeverityOK
		result.Message = fmt.Sprintf("OK: registry initialized with %d queues", len(snapshot))
	} else {
		result.Severity, result.Message = c.classify(snapshot, critical, warning)
	}

	c.observeRegistry(snapshot, updated, now)
	c.finish(result, snapshot)

	return result, nil
}

// classify folds the per-queue trend sets and the aggregate total thresholds
// into one severity. The two paths are independent; the worse one wins.
func (c *Checker) classify(snapshot []models.QueueObservation, critical, warning map[string]int64) (models.Severity, string) {
	severity := models.SeverityOK
	var parts []string

	if len(critical) > 0 {
		severity = models.SeverityCritical
		parts = append(parts, fmt.Sprintf("%d queues not draining: %s", len(critical), formatQueues(critical)))
	} else if len(warning) > 0 {
		severity = models.SeverityWarning
		parts = append(parts, fmt.Sprintf("%d queues slow to drain: %s", len(warning), formatQueues(warning)))
	}

	var total int64
	for _, obs := range snapshot {
		total += obs.Messages
	}

	if c.critTotal > 0 && total >= c.critTotal {
		severity = severity.Max(models.SeverityCritical)
		parts = append(parts, fmt.Sprintf("total backlog %d >= %d", total, c.critTotal))
	} else if c.warnTotal > 0 && total >= c.warnTotal {
		severity = severity.Max(models.SeverityWarning)
		parts = append(parts, fmt.Sprintf("total backlog %d >= %d", total, c.warnTotal))
	}

	if len(parts) == 0 {
		return severity, fmt.Sprintf("OK: %d queues, total backlog %d", len(snapshot), total)
	}

	return severity, fmt.Sprintf("%s: %s", severity, strings.Join(parts, "; "))
}

func (c *Checker) observeRegistry(snapshot []models.QueueObservation, updated models.Registry, now time.Time) {
	for _, obs := range snapshot {
		queueDepth.WithLabelValues(obs.Name).Set(float64(obs.Messages))
		if state, ok := updated[obs.Name]; ok {
			queueStuckSeconds.WithLabelValues(obs.Name).Set(now.Sub(state.LastDecreaseAt).Seconds())
		}
	}
}

func (c *Checker) finish(result models.CheckResult, snapshot []models.QueueObservation) {
	runsTotal.WithLabelValues(result.Severity.String()).Inc()
	lastRunSeverity.Set(float64(result.Severity))

	if c.recorder != nil {
		if err := c.recorder.RecordRun(result, snapshot); err != nil {
			log.Error().Err(err).Msg("Unable to record run history")
		}
	}

	log.Info().
		Int64("run_id", result.RunID).
		Str("severity", result.Severity.String()).
		Int("critical", len(result.Critical)).
		Int("warning", len(result.Warning)).
		Msg(result.Message)
}

func formatQueues(set map[string]int64) string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]string, len(names))
	for i, name := range names {
		entries[i] = fmt.Sprintf("%s (%d)", name, set[name])
	}
	return strings.Join(entries, ", ")
}
