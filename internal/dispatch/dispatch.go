// Package dispatch routes decoded envelopes to the processor bound to their
// business line.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

const tracerName = "github.com/Tyrowin/relaychat/internal/dispatch"

// Processor handles every envelope of one business line. A single instance
// serves all connections, so implementations keep their state in the
// registry.
type Processor interface {
	Process(ctx context.Context, h registry.Handle, env *protocol.Envelope)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, h registry.Handle, env *protocol.Envelope)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, h registry.Handle, env *protocol.Envelope) {
	f(ctx, h, env)
}

// Dispatcher maps business-line ids to processors. The table is fixed at
// construction.
type Dispatcher struct {
	routes map[protocol.AppID]Processor
	logger *slog.Logger
	tracer trace.Tracer
}

// New builds a Dispatcher from routes. Nil processors are skipped.
func New(logger *slog.Logger, routes map[protocol.AppID]Processor) *Dispatcher {
	table := make(map[protocol.AppID]Processor, len(routes))
	for app, p := range routes {
		if p != nil {
			table[app] = p
		}
	}
	return &Dispatcher{
		routes: table,
		logger: logger.With(slog.String("component", "dispatcher")),
		tracer: otel.Tracer(tracerName),
	}
}

// Dispatch forwards env to its processor and reports whether one handled it.
// Unknown business lines are dropped without a reply. A panicking processor
// is contained to the message.
func (d *Dispatcher) Dispatch(ctx context.Context, h registry.Handle, env *protocol.Envelope) (handled bool) {
	if env == nil {
		return false
	}

	p, ok := d.routes[env.AppID]
	if !ok {
		d.logger.Warn("dropping message for unknown business line",
			slog.Int("app_id", int(env.AppID)),
			slog.Int64("uid", env.UID),
			slog.Int("message_type", env.MessageType))
		return false
	}

	ctx, span := d.tracer.Start(ctx, "dispatch."+env.AppID.String(),
		trace.WithAttributes(
			attribute.Int("relay.app_id", int(env.AppID)),
			attribute.Int("relay.message_type", env.MessageType),
			attribute.Int64("relay.uid", env.UID),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("processor panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.logger.Error("processor panicked",
				slog.String("line", env.AppID.String()),
				slog.Int64("uid", env.UID),
				slog.Any("panic", r))
			handled = false
		}
	}()

	p.Process(ctx, h, env)
	return true
}
