package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRouter(mw func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/api/v1/repositories/{id}/sync", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/v1/scheduler/run", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return r
}

func TestMetricsMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	mw, err := MetricsMiddleware(nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newRouter(mw).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/repositories/a/sync", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	t.Parallel()

	reader, mp := newReaderProvider(t)
	mw, err := MetricsMiddleware(mp)
	require.NoError(t, err)
	router := newRouter(mw)

	for _, id := range []string{"acme-api", "acme-web", "acme-cli"} {
		router.ServeHTTP(httptest.NewRecorder(),
			httptest.NewRequest(http.MethodGet, "/api/v1/repositories/"+id+"/sync", nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	got := collect(t, reader)
	total, ok := got["reposync_http_requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := map[string]int64{}
	for _, dp := range total.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		byRoute[route.AsString()] += dp.Value
	}
	assert.Equal(t, int64(3), byRoute["/api/v1/repositories/{id}/sync"])
	assert.Equal(t, int64(1), byRoute[unknownRoute])

	active, ok := got["reposync_http_active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	for _, dp := range active.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestTracingMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newRouter(TracingMiddleware(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/repositories/a/sync", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTracingMiddleware_NamesSpanByRoute(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)
	router := newRouter(TracingMiddleware(tp))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/repositories/acme-api/sync", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/run", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "GET /api/v1/repositories/{id}/sync", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	assert.Equal(t, "POST /api/v1/scheduler/run", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestTracingMiddleware_ContinuesIncomingTrace(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracerProvider(t)

	// start a client span and inject it into the request headers
	parentCtx, parent := tp.Tracer("client").Start(context.Background(), "client")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/repositories/acme-api/sync", nil)
	propagation.TraceContext{}.Inject(parentCtx, propagation.HeaderCarrier(req.Header))
	parent.End()

	// the global propagator may not be configured in tests, so install one on the handler path
	handler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	r := chi.NewRouter()
	r.Use(handler, TracingMiddleware(tp))
	r.Get("/api/v1/repositories/{id}/sync", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	server := spans[1]
	assert.Equal(t, parent.SpanContext().TraceID(), server.SpanContext.TraceID())
}
