package telemetry

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbRecordKey    = "beacon.record"

	spanInstanceKey = "beacon:db_span"
	maxStatementLen = 500
)

// GORMTracingPlugin returns a GORM plugin that opens a client span around every
// notification, message and directory statement. db.system follows the
// dialector (postgres or sqlite).
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("beacon/gorm")}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "beacon:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("beacon:trace_query", p.start("select")),
		cb.Query().After("gorm:query").Register("beacon:trace_query_end", p.end),
		cb.Create().Before("gorm:create").Register("beacon:trace_create", p.start("insert")),
		cb.Create().After("gorm:create").Register("beacon:trace_create_end", p.end),
		cb.Update().Before("gorm:update").Register("beacon:trace_update", p.start("update")),
		cb.Update().After("gorm:update").Register("beacon:trace_update_end", p.end),
		cb.Delete().Before("gorm:delete").Register("beacon:trace_delete", p.start("delete")),
		cb.Delete().After("gorm:delete").Register("beacon:trace_delete_end", p.end),
	)
}

// recordKind groups tables by the store that owns them
func recordKind(table string) string {
	switch table {
	case "notifications":
		return "notification"
	case "messages":
		return "message"
	case "":
		return "unknown"
	default:
		return "directory"
	}
}

func (p *tracingPlugin) start(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		system := "unknown"
		if db.Dialector != nil {
			system = db.Dialector.Name()
		}
		table := db.Statement.Table

		_, span := p.tracer.Start(ctx, "db."+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, system),
				attribute.String(dbTableKey, table),
				attribute.String(dbOperationKey, strings.ToUpper(operation)),
				attribute.String(dbRecordKey, recordKind(table)),
			),
		)
		db.InstanceSet(spanInstanceKey, span)
	}
}

func (p *tracingPlugin) end(db *gorm.DB) {
	raw, ok := db.InstanceGet(spanInstanceKey)
	if !ok {
		return
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatementLen {
			sql = sql[:maxStatementLen] + "..."
		}
		span.SetAttributes(attribute.String("db.statement", sql))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
