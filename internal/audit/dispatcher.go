// Package audit delivers lifecycle events to one or more sinks.
package audit

import (
	"context"
	"errors"

	"github.com/sealkeep/sessionvault/internal/logger"
	"github.com/sealkeep/sessionvault/internal/model"
)

var (
	_ model.AuditSink = (*Dispatcher)(nil)
	_ model.AuditSink = (*LogSink)(nil)
	_ model.AuditSink = NoopSink{}
)

// Dispatcher fans one event out to every configured sink. A failing sink
// does not stop delivery to the others; failures are joined and returned.
type Dispatcher struct {
	sinks []model.AuditSink
}

func NewDispatcher(sinks ...model.AuditSink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

func (d *Dispatcher) Emit(ctx context.Context, event model.AuditEvent) error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured log. Reuse detection is the
// primary compromise signal, so it alone goes out at Error level.
type LogSink struct {
	logger *logger.Logger
}

func NewLogSink(logger *logger.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event model.AuditEvent) error {
	args := []any{
		"action", string(event.Action),
		"principal_id", event.PrincipalID,
		"resource", event.Resource,
		"resource_id", event.ResourceID,
	}
	if event.TenantID != nil {
		args = append(args, "tenant_id", *event.TenantID)
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}

	if event.Action == model.AuditSuspiciousReuse {
		s.logger.Error("audit: security incident", args...)
		return nil
	}
	s.logger.Info("audit", args...)
	return nil
}

// NoopSink drops events.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, model.AuditEvent) error { return nil }
