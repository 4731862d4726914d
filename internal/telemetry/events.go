package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ============================================================================
// FAN-OUT OPERATIONS
// ============================================================================

// NotifyAttrs describes one fan-out call
type NotifyAttrs struct {
	SenderKind string // "user", "system", "none"
	Recipients int
}

// TraceNotify creates a span around a persist-then-push operation
// Examples: notify_user, notify_many, notify_followers, get_unread
func TraceNotify(ctx context.Context, operation string, attrs NotifyAttrs) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("fanout").Start(ctx, "fanout."+operation,
		trace.WithAttributes(
			attribute.String("fanout.operation", operation),
		),
	)

	if attrs.SenderKind != "" {
		span.SetAttributes(attribute.String("fanout.sender_kind", attrs.SenderKind))
	}
	if attrs.Recipients > 0 {
		span.SetAttributes(attribute.Int("fanout.recipients", attrs.Recipients))
	}

	return ctx, span
}

// RecordDelivery records how many records were written and how many were pushed live
func RecordDelivery(span trace.Span, persisted, pushed int) {
	span.SetAttributes(
		attribute.Int("fanout.persisted", persisted),
		attribute.Int("fanout.pushed", pushed),
	)
}

// TraceSignal creates a span for a call signaling relay
func TraceSignal(ctx context.Context, event string) (context.Context, trace.Span) {
	return otel.Tracer("signaling").Start(ctx, "signaling.relay",
		trace.WithAttributes(attribute.String("signaling.event", event)),
	)
}

// TracePage creates a span for a stateful pagination step
func TracePage(ctx context.Context, userID string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("pagination").Start(ctx, "pagination.next")
	SetUserContext(span, userID)
	return ctx, span
}

// ============================================================================
// BACKING SERVICE CALLS
// ============================================================================

// TraceStoreCall creates a client span for a call to redis or mongo
// Examples: ("redis", "presence.register"), ("mongo", "notifications.insert_many")
func TraceStoreCall(ctx context.Context, system, operation string) (context.Context, trace.Span) {
	return otel.Tracer(system).Start(ctx, system+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
		),
	)
}

// ============================================================================
// ERROR AND CONTEXT HELPERS
// ============================================================================

// RecordError marks the span failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}

// SetUserContext sets the acting user on the span
func SetUserContext(span trace.Span, userID string) {
	if userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}
}

// SetRequestContext sets request-specific attributes
func SetRequestContext(span trace.Span, requestID string, userAgent string) {
	if requestID != "" {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	if userAgent != "" {
		if len(userAgent) > 200 {
			userAgent = userAgent[:200] + "..."
		}
		span.SetAttributes(attribute.String("http.user_agent", userAgent))
	}
}
