package tracing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/orderfeed/internal/observability/context"
	"github.com/smallbiznis/orderfeed/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const CorrelationIDHeader = "X-Correlation-Id"

// GinMiddleware instruments inbound HTTP requests. The correlation id
// comes from the inbound header, then the request id, then a fresh ULID.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("orderfeed/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		cid := strings.TrimSpace(c.GetHeader(CorrelationIDHeader))
		if cid == "" {
			cid = obscontext.RequestIDFromContext(ctx)
		}
		ctx, cid = correlation.EnsureCorrelationID(correlation.ContextWithCorrelationID(ctx, cid))
		c.Header(CorrelationIDHeader, cid)

		ctx, span := tracer.Start(ctx, "HTTP "+strings.ToUpper(c.Request.Method), trace.WithSpanKind(trace.SpanKindServer))

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + strings.ToUpper(c.Request.Method) + " " + route)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

// ExtractContext reads upstream trace headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeError keeps the error class but drops the message, which may carry
// customer data from order documents.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	type coded interface{ Code() string }
	var c coded
	if errors.As(err, &c) {
		return errors.New(c.Code())
	}
	return errors.New("request_failed")
}
