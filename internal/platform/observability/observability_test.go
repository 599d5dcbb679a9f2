package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/eventdesk/api/internal/domain"
	"github.com/eventdesk/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	info, spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", info.TraceID)
	assert.Equal(t, "0000000000000001", info.SpanID)
	assert.True(t, info.Sampled)
	assert.True(t, spanCtx.IsRemote())

	for _, header := range []string{"", "nope", "short/1", "105445aa7843bc8bf206b12000100000/zz"} {
		_, _, ok := parseCloudTraceContext(header)
		assert.False(t, ok, header)
	}
}

func TestTraceMiddlewareKeepsCloudTraceID(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("eventdesk-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "105445aa7843bc8bf206b12000100000", got.TraceID)
	assert.Equal(t, "eventdesk-prod", got.ProjectID)
	assert.Contains(t, rr.Header().Get(cloudTraceHeader), "105445aa7843bc8bf206b12000100000/")
}

func TestEventLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "order.created", map[string]any{"orderId": "ord_1", "number": "EVT-0001"})
	log(context.Background(), "order.event.publish.failed", map[string]any{"error": "boom"})

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "order.created", entries[0].Message)
	assert.Equal(t, "ord_1", entries[0].ContextMap()["orderId"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(fallbackCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	log(ctx, "order.quoted", nil)

	assert.Equal(t, 0, fallbackLogs.Len())
	assert.Equal(t, 1, requestLogs.Len())
}

func TestRequestLoggerRecordsRouteStatusAndActor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(RequestLoggerMiddleware())
	router.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithActor(r.Context(), domain.Actor{ID: "admin-1"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, ActorCapture).Get("/admin/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/orders/ord_9", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/admin/orders/{orderID}", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "admin-1", fields["actor_id"])
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/orders", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal_server_error")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestSanitizeLogValues(t *testing.T) {
	assert.Equal(t, "/", SanitizeRoute(""))
	assert.Equal(t, "/orders/{orderID}", SanitizeRoute("/orders/{orderID}\x00\x1b"))
	assert.Len(t, SanitizeRoute("/"+strings.Repeat("a", 400)), 180)
	assert.Equal(t, "GET", SanitizeMethod("G\x07ET"))
	assert.Len(t, SanitizeMethod(strings.Repeat("P", 20)), 10)
	assert.Empty(t, SanitizeUserID(""))
	assert.Equal(t, "admin-1", SanitizeUserID("admin-1\x7f"))
}
