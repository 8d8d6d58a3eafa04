// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/danielhkuo/crowdlist/engine"

type instruments struct {
	tracer trace.Tracer

	toggled          metric.Int64Counter
	rejected         metric.Int64Counter
	dispatched       metric.Int64Counter
	dispatchDuration metric.Float64Histogram
}

// newInstruments binds to the global providers. Without telemetry configured
// these are no-ops.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if in.toggled, err = meter.Int64Counter("crowdlist.votes.toggled",
		metric.WithDescription("Vote toggles applied to the ledger"),
		metric.WithUnit("{vote}"),
	); err != nil {
		slog.Warn("failed to create counter", "name", "crowdlist.votes.toggled", "error", err)
	}
	if in.rejected, err = meter.Int64Counter("crowdlist.votes.rejected",
		metric.WithDescription("Vote toggles rejected by the limit or commit guard"),
		metric.WithUnit("{vote}"),
	); err != nil {
		slog.Warn("failed to create counter", "name", "crowdlist.votes.rejected", "error", err)
	}
	if in.dispatched, err = meter.Int64Counter("crowdlist.dispatch.total",
		metric.WithDescription("Playlist append attempts"),
		metric.WithUnit("{dispatch}"),
	); err != nil {
		slog.Warn("failed to create counter", "name", "crowdlist.dispatch.total", "error", err)
	}
	if in.dispatchDuration, err = meter.Float64Histogram("crowdlist.dispatch.duration",
		metric.WithDescription("Playlist append latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		slog.Warn("failed to create histogram", "name", "crowdlist.dispatch.duration", "error", err)
	}
	return in
}

func (in *instruments) recordToggle(ctx context.Context, action string) {
	if in.toggled != nil {
		in.toggled.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
}

func (in *instruments) recordRejected(ctx context.Context, status string) {
	if in.rejected != nil {
		in.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func (in *instruments) recordDispatch(ctx context.Context, result string, took time.Duration) {
	if in.dispatched != nil {
		in.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
	if in.dispatchDuration != nil {
		in.dispatchDuration.Record(ctx, took.Seconds(), metric.WithAttributes(attribute.String("result", result)))
	}
}
