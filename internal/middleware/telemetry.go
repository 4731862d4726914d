package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware returns a middleware that traces HTTP requests using OpenTelemetry.
// Pair it with SpanEnrichmentMiddleware, which must run inside the request span.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			// websocket upgrades would hold a span open for the life of the connection
			return r.URL.Path != "/api/v1/ws"
		}),
	)
}

// SpanEnrichmentMiddleware adds caller and outcome attributes to the request span
// after the handler has run
func SpanEnrichmentMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		telemetry.SetUserContext(span, c.GetString("user_id"))
		telemetry.SetRequestContext(span, c.GetString("request_id"), c.Request.UserAgent())
		if id := c.Param("id"); id != "" {
			span.SetAttributes(attribute.String("resource.id", id))
		}
		if size := c.Writer.Size(); size > 0 {
			span.SetAttributes(attribute.Int("http.response.size_bytes", size))
		}

		// Record Gin errors as span events
		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err, trace.WithStackTrace(true))
				span.SetStatus(codes.Error, ginErr.Error())
			}
		}
		if status := c.Writer.Status(); status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}
