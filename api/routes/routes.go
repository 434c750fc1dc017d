package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/metalmatze/signal/server/signalhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/netlens/netlens/api/models"
	"github.com/netlens/netlens/api/response"
	"github.com/netlens/netlens/internal/db"
	"github.com/netlens/netlens/internal/ingester"
	"github.com/netlens/netlens/internal/timeaxis"
)

type routes struct {
	handler http.Handler
	mux     *http.ServeMux

	eventIngester   *ingester.EventIngester
	dbProvider      db.Provider
	targetTickCount int
	defaultWindow   time.Duration
}

type Option func(*routes)

func WithDBProvider(dbProvider db.Provider) Option {
	return func(r *routes) {
		r.dbProvider = dbProvider
	}
}

func WithEventIngester(eventIngester *ingester.EventIngester) Option {
	return func(r *routes) {
		r.eventIngester = eventIngester
	}
}

func WithTargetTickCount(n int) Option {
	return func(r *routes) {
		r.targetTickCount = n
	}
}

func WithDefaultWindow(window time.Duration) Option {
	return func(r *routes) {
		r.defaultWindow = window
	}
}

func WithProxy(upstream *url.URL) Option {
	return func(r *routes) {
		proxy := httputil.NewSingleHostReverseProxy(upstream)
		originalDirector := proxy.Director
		proxy.Director = func(req *http.Request) {
			originalDirector(req)
			req.Host = upstream.Host // Set the Host header to the target host
		}
		r.handler = proxy
	}
}

func WithHandlers(registry *prometheus.Registry, isTracingEnabled bool) Option {
	return func(r *routes) {
		i := signalhttp.NewHandlerInstrumenter(registry, []string{"handler"})
		mux := http.NewServeMux()
		mux.Handle("/", i.NewHandler(
			prometheus.Labels{"handler": "proxy"},
			maybeTraced(http.HandlerFunc(r.proxyAndRecord), "proxy", isTracingEnabled),
		))
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/api/v1/timeline", i.NewHandler(
			prometheus.Labels{"handler": "timeline"},
			maybeTraced(http.HandlerFunc(r.timeline), "/api/v1/timeline", isTracingEnabled),
		))
		mux.Handle("/api/v1/requests", http.HandlerFunc(r.listRequests))
		mux.Handle("/api/v1/stats/status_distribution", http.HandlerFunc(r.statusDistribution))
		mux.Handle("/api/v1/stats/average_duration", http.HandlerFunc(r.averageDuration))
		r.mux = mux
	}
}

func maybeTraced(h http.Handler, operation string, isTracingEnabled bool) http.Handler {
	if !isTracingEnabled {
		return h
	}
	return otelhttp.NewHandler(h, operation)
}

func NewRoutes(opts ...Option) (*routes, error) {
	r := &routes{
		mux:             http.NewServeMux(),
		targetTickCount: 5,
		defaultWindow:   15 * time.Minute,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *routes) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// proxyAndRecord forwards the request upstream and captures the completed
// round trip as a request event: start/end wall-clock timestamps, status
// code, and response body size.
func (r *routes) proxyAndRecord(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	recw := response.NewResponseWriter(w)
	r.handler.ServeHTTP(recw, req)

	end := time.Now()
	r.eventIngester.Ingest(db.RequestEvent{
		Method:     req.Method,
		Host:       req.Host,
		Path:       req.URL.Path,
		StatusCode: recw.StatusCode(),
		BodySize:   recw.BodySize(),
		Start:      start,
		End:        end,
		Duration:   end.Sub(start),
	})
}

// timeline serves the axis divisions for the currently visible request set.
// The span is max(end) - min(start) over all events in range; an empty set
// yields the trivial single-tick axis.
func (r *routes) timeline(w http.ResponseWriter, req *http.Request) {
	tr, err := getTimeRange(req, r.defaultWindow)
	if err != nil {
		writeErrorResponse(req, w, err, http.StatusBadRequest)
		return
	}

	span, err := r.dbProvider.GetTimelineSpan(req.Context(), tr)
	if err != nil {
		slog.Error("unable to query timeline span", "err", err)
		writeErrorResponse(req, w, fmt.Errorf("unable to query timeline span: %w", err), http.StatusInternalServerError)
		return
	}

	divisions, err := timeaxis.Divide(span.DurationMs(), r.targetTickCount)
	if err != nil {
		if errors.Is(err, timeaxis.ErrInvalidArgument) {
			writeErrorResponse(req, w, err, http.StatusBadRequest)
			return
		}
		slog.Error("unable to divide timeline axis", "err", err)
		writeErrorResponse(req, w, err, http.StatusInternalServerError)
		return
	}

	writeJSONResponse(req, w, models.TimelineResponse{
		DurationMs:   span.DurationMs(),
		RequestCount: span.Count,
		Divisions:    divisions,
	})
}

func (r *routes) listRequests(w http.ResponseWriter, req *http.Request) {
	tr, err := getTimeRange(req, r.defaultWindow)
	if err != nil {
		writeErrorResponse(req, w, err, http.StatusBadRequest)
		return
	}

	page, err := getQueryParamAsInt(req, "page", 1)
	if err != nil {
		writeErrorResponse(req, w, fmt.Errorf("invalid page parameter: %w", err), http.StatusBadRequest)
		return
	}

	pageSize, err := getQueryParamAsInt(req, "pageSize", 50)
	if err != nil {
		writeErrorResponse(req, w, fmt.Errorf("invalid pageSize parameter: %w", err), http.StatusBadRequest)
		return
	}

	if page < 1 || pageSize < 1 {
		writeErrorResponse(req, w, fmt.Errorf("page and pageSize must be positive"), http.StatusBadRequest)
		return
	}

	data, err := r.dbProvider.ListRequestEvents(req.Context(), db.ListParams{
		TimeRange: tr,
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		slog.Error("unable to list request events", "err", err)
		writeErrorResponse(req, w, fmt.Errorf("unable to list request events: %w", err), http.StatusInternalServerError)
		return
	}

	writeJSONResponse(req, w, data)
}

func (r *routes) statusDistribution(w http.ResponseWriter, req *http.Request) {
	tr, err := getTimeRange(req, r.defaultWindow)
	if err != nil {
		writeErrorResponse(req, w, err, http.StatusBadRequest)
		return
	}

	data, err := r.dbProvider.GetStatusDistribution(req.Context(), tr)
	if err != nil {
		slog.Error("unable to query status distribution", "err", err)
		writeErrorResponse(req, w, fmt.Errorf("unable to query status distribution: %w", err), http.StatusInternalServerError)
		return
	}

	writeJSONResponse(req, w, data)
}

func (r *routes) averageDuration(w http.ResponseWriter, req *http.Request) {
	tr, err := getTimeRange(req, r.defaultWindow)
	if err != nil {
		writeErrorResponse(req, w, err, http.StatusBadRequest)
		return
	}

	data, err := r.dbProvider.GetAverageDuration(req.Context(), tr)
	if err != nil {
		slog.Error("unable to query average duration", "err", err)
		writeErrorResponse(req, w, fmt.Errorf("unable to query average duration: %w", err), http.StatusInternalServerError)
		return
	}

	writeJSONResponse(req, w, data)
}

// getTimeRange parses the from/to query parameters, defaulting to the
// configured lookback window ending now.
func getTimeRange(req *http.Request, defaultWindow time.Duration) (db.TimeRange, error) {
	to := time.Now()
	if toParam := req.FormValue("to"); toParam != "" {
		parsed, err := time.Parse(time.RFC3339, toParam)
		if err != nil {
			return db.TimeRange{}, fmt.Errorf("invalid to parameter: %w", err)
		}
		to = parsed
	}

	from := to.Add(-defaultWindow)
	if fromParam := req.FormValue("from"); fromParam != "" {
		parsed, err := time.Parse(time.RFC3339, fromParam)
		if err != nil {
			return db.TimeRange{}, fmt.Errorf("invalid from parameter: %w", err)
		}
		from = parsed
	}

	if to.Before(from) {
		return db.TimeRange{}, fmt.Errorf("to must not precede from")
	}

	return db.TimeRange{From: from, To: to}, nil
}

func getQueryParamAsInt(req *http.Request, param string, defaultValue int) (int, error) {
	value := req.URL.Query().Get(param)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func writeJSONResponse(req *http.Request, w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode JSON response", "err", err)
		writeErrorResponse(req, w, fmt.Errorf("failed to encode response: %w", err), http.StatusInternalServerError)
		return
	}
}

func writeErrorResponse(r *http.Request, w http.ResponseWriter, err error, status int) {
	response := struct {
		Error   string `json:"error"`
		Code    int    `json:"code"`
		TraceID string `json:"traceId,omitempty"`
	}{
		Error:   err.Error(),
		Code:    status,
		TraceID: trace.SpanFromContext(r.Context()).SpanContext().TraceID().String(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode JSON response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
