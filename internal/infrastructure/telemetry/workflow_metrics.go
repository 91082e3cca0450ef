package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// WorkflowMetrics tracks fund request creation, transitions and conflicts,
// plus a periodically collected count of requests per status.
type WorkflowMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requestCreatedTotal *Counter
	requestAmountTotal  *Counter
	transitionTotal     *Counter
	conflictTotal       *Counter
	transitionDuration  *Histogram

	requestsByStatus *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	statusProvider StatusCountProvider
}

// StatusCountProvider reports how many requests each status holds for a tenant.
// It keeps the telemetry layer independent of the persistence models.
type StatusCountProvider interface {
	CountByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int64, error)
}

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// WorkflowMetricsConfig holds configuration for workflow metrics.
type WorkflowMetricsConfig struct {
	Meter          metric.Meter
	Logger         *zap.Logger
	StatusProvider StatusCountProvider
}

// NewWorkflowMetrics creates the workflow instruments on the given meter.
func NewWorkflowMetrics(cfg WorkflowMetricsConfig) (*WorkflowMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wm := &WorkflowMetrics{
		meter:          cfg.Meter,
		logger:         logger,
		stopChan:       make(chan struct{}),
		statusProvider: cfg.StatusProvider,
	}

	var err error
	wm.requestCreatedTotal, err = NewCounter(cfg.Meter,
		"fundflow_request_created_total",
		"Total number of fund requests created",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	wm.requestAmountTotal, err = NewCounter(cfg.Meter,
		"fundflow_request_amount_total",
		"Total requested amount in minor currency units",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	wm.transitionTotal, err = NewCounter(cfg.Meter,
		"fundflow_transition_total",
		"Total number of attempted status transitions",
		"{transitions}",
	)
	if err != nil {
		return nil, err
	}

	wm.conflictTotal, err = NewCounter(cfg.Meter,
		"fundflow_transition_conflict_total",
		"Total number of conditional updates that lost a race",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	wm.transitionDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "fundflow_transition_duration_seconds",
		Description: "Duration of a transition including persistence",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	wm.requestsByStatus, err = NewGauge(cfg.Meter,
		"fundflow_requests_by_status",
		"Current number of fund requests per status",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	return wm, nil
}

// TransitionOutcome labels the result of a transition attempt.
type TransitionOutcome string

const (
	OutcomeSuccess  TransitionOutcome = "success"
	OutcomeRejected TransitionOutcome = "rejected"
	OutcomeConflict TransitionOutcome = "conflict"
	OutcomeError    TransitionOutcome = "error"
)

// RecordRequestCreated records a new request and its amount.
func (wm *WorkflowMetrics) RecordRequestCreated(ctx context.Context, tenantID uuid.UUID, currency string, amount decimal.Decimal) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrCurrency.String(currency),
	}
	wm.requestCreatedTotal.Inc(ctx, attrs...)
	wm.requestAmountTotal.Add(ctx, amount.Mul(decimal.NewFromInt(100)).IntPart(), attrs...)
}

// RecordTransition records one transition attempt and how long it took.
func (wm *WorkflowMetrics) RecordTransition(ctx context.Context, tenantID uuid.UUID, from, to string, outcome TransitionOutcome, d time.Duration) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrFromStatus.String(from),
		AttrToStatus.String(to),
		AttrOutcome.String(string(outcome)),
	}
	wm.transitionTotal.Inc(ctx, attrs...)
	wm.transitionDuration.RecordDuration(ctx, d, attrs...)
}

// RecordConflict records a lost conditional update. retried tells whether
// the service is about to retry it.
func (wm *WorkflowMetrics) RecordConflict(ctx context.Context, tenantID uuid.UUID, retried bool) {
	wm.conflictTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrRetried.Bool(retried),
	)
}

// RecordStatusCount records the number of requests currently in a status.
func (wm *WorkflowMetrics) RecordStatusCount(ctx context.Context, tenantID uuid.UUID, status string, count int64) {
	wm.requestsByStatus.Record(ctx, count,
		AttrTenantID.String(tenantID.String()),
		AttrStatus.String(status),
	)
}

// StartPeriodicCollection starts collecting the per-status gauge every interval
// (default: 1 minute). It is non-blocking; use Stop to end collection.
func (wm *WorkflowMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	wm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go wm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

func (wm *WorkflowMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wm.collectStatusCounts(ctx, tenantProvider)

	for {
		select {
		case <-wm.stopChan:
			wm.logger.Info("Stopping periodic workflow metrics collection")
			return
		case <-ctx.Done():
			wm.logger.Info("Context cancelled, stopping periodic workflow metrics collection")
			return
		case <-ticker.C:
			wm.collectStatusCounts(ctx, tenantProvider)
		}
	}
}

func (wm *WorkflowMetrics) collectStatusCounts(ctx context.Context, tenantProvider TenantProvider) {
	if wm.statusProvider == nil {
		wm.logger.Debug("No status provider configured, skipping status metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		wm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		counts, err := wm.statusProvider.CountByStatus(ctx, tenantID)
		if err != nil {
			wm.logger.Warn("Failed to count requests by status",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		for status, count := range counts {
			wm.RecordStatusCount(ctx, tenantID, status, count)
		}
	}
}

// Stop stops the periodic collection.
func (wm *WorkflowMetrics) Stop() {
	wm.stopOnce.Do(func() {
		close(wm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewWorkflowMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
