package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig selects which database instrumentation is installed
type DBConfig struct {
	Tracing bool
	// QueryVariables keeps bound values in span statements; leave off outside development
	QueryVariables bool
	DBName         string
	Metrics        bool
	SlowQuery      time.Duration
}

const queryStartKey = "fundflow:query_start"

// InstrumentDB installs otelgorm spans, a query duration histogram and
// connection pool gauges on db. Slow queries are logged at warn level.
func InstrumentDB(db *gorm.DB, meter metric.Meter, cfg DBConfig, logger *zap.Logger) error {
	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
		if !cfg.QueryVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return fmt.Errorf("failed to register otelgorm: %w", err)
		}
	}
	if !cfg.Metrics || meter == nil {
		return nil
	}

	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "fundflow_db_query_duration_seconds",
		Description: "Duration of database statements",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return err
	}
	if err := registerQueryTiming(db, duration, cfg.SlowQuery, logger); err != nil {
		return err
	}
	return registerPoolGauges(db, meter)
}

func registerQueryTiming(db *gorm.DB, duration *Histogram, slow time.Duration, logger *zap.Logger) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			elapsed := time.Since(v.(time.Time))
			ctx := tx.Statement.Context
			if ctx == nil {
				ctx = context.Background()
			}
			duration.RecordDuration(ctx, elapsed,
				AttrDBOperation.String(operation),
				AttrDBTable.String(tx.Statement.Table),
			)
			if slow > 0 && elapsed >= slow {
				logger.Warn("Slow query",
					zap.String("operation", operation),
					zap.String("table", tx.Statement.Table),
					zap.Duration("elapsed", elapsed),
				)
			}
		}
	}

	cb := db.Callback()
	steps := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, s := range steps {
		if err := s.before("fundflow:before_"+s.name, before); err != nil {
			return fmt.Errorf("failed to register %s timing callback: %w", s.name, err)
		}
		if err := s.after("fundflow:after_"+s.name, after(strings.ToUpper(s.name))); err != nil {
			return fmt.Errorf("failed to register %s timing callback: %w", s.name, err)
		}
	}
	return nil
}

func registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	conns, err := meter.Int64ObservableGauge("fundflow_db_pool_connections",
		metric.WithDescription("Database pool connections by state"),
		metric.WithUnit("{connections}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("fundflow_db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{waits}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool wait counter: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(conns, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(conns, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, conns, waits)
	if err != nil {
		return fmt.Errorf("failed to register pool callback: %w", err)
	}
	return nil
}
