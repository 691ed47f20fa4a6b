package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"groupchat/internal/observability"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/groups/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/groups/{id}", "200")
	before := promtestutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups/"+id, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, before+3, promtestutil.ToFloat64(counter))
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before := promtestutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, promtestutil.ToFloat64(counter))
}

func TestMetrics_StatusCodeVariations(t *testing.T) {
	statusCodes := []int{
		http.StatusOK,
		http.StatusCreated,
		http.StatusNoContent,
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusConflict,
		http.StatusServiceUnavailable,
	}

	for _, code := range statusCodes {
		t.Run(fmt.Sprintf("Status_%d", code), func(t *testing.T) {
			r := chi.NewRouter()
			r.Use(Metrics())
			r.Post("/status", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			})

			counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/status", fmt.Sprint(code))
			before := promtestutil.ToFloat64(counter)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/status", nil))

			assert.Equal(t, code, w.Code)
			assert.Equal(t, before+1, promtestutil.ToFloat64(counter))
		})
	}
}

func TestMetrics_DefaultStatusCodeIsOK(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("response"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "response", w.Body.String())
}

func TestMetrics_FirstStatusWins(t *testing.T) {
	mockWriter := &mockResponseWriter{header: make(http.Header)}
	rw := &responseWriter{ResponseWriter: mockWriter, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, rw.statusCode)
}

func TestMetrics_ResponseWriterHijackNotImplemented(t *testing.T) {
	rw := &responseWriter{
		ResponseWriter: &mockResponseWriter{header: make(http.Header)},
		statusCode:     http.StatusOK,
	}

	conn, buf, err := rw.Hijack()

	assert.Error(t, err)
	assert.Nil(t, conn)
	assert.Nil(t, buf)
	assert.Equal(t, "responsewriter does not implement http.Hijacker", err.Error())
}

func TestMetrics_PanicsInNextHandler(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler panic")
	}))

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/test", nil))
	})
}

// mockResponseWriter deliberately does not implement http.Hijacker.
type mockResponseWriter struct {
	statusCode int
	header     http.Header
	body       []byte
}

func (m *mockResponseWriter) Header() http.Header {
	return m.header
}

func (m *mockResponseWriter) Write(b []byte) (int, error) {
	m.body = append(m.body, b...)
	return len(b), nil
}

func (m *mockResponseWriter) WriteHeader(statusCode int) {
	m.statusCode = statusCode
}
