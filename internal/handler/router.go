// Package handler exposes the bridge's read-only HTTP surface: the sensor
// catalogue computed from the latest snapshot, account status, a manual
// refresh trigger, and the operational endpoints.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/oejp/kraken-bridge/internal/domain"
	"github.com/oejp/kraken-bridge/internal/infra/observability"
	"github.com/oejp/kraken-bridge/internal/localtime"
	"github.com/oejp/kraken-bridge/internal/sensor"
	"github.com/oejp/kraken-bridge/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(coord *service.Coordinator, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(coord))
	r.Get("/readyz", readyzHandler(coord))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sensors", listSensorsHandler(coord, metrics, logger))
		r.Get("/sensors/{sensorKey}", getSensorHandler(coord, metrics, logger))
		r.Get("/account", accountStatusHandler(coord))
		r.Post("/refresh", refreshHandler(coord, logger))
	})

	return r
}

// sensorResponse is one sensor's presentation: catalogue metadata plus the
// computed state, or an unavailability reason when computation failed.
type sensorResponse struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Unit        string         `json:"unit,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	StateClass  string         `json:"state_class,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Available   bool           `json:"available"`
	State       any            `json:"state,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// renderSensor computes one sensor against the snapshot. Unavailability is
// not an endpoint failure: the sensor is returned with available=false and
// the rest of the catalogue is unaffected.
func renderSensor(s sensor.Sensor, snap *domain.AccountSnapshot, now time.Time, metrics *observability.Metrics, logger *zap.Logger) sensorResponse {
	resp := sensorResponse{
		Key:         s.Key,
		Name:        s.Name,
		Unit:        s.Unit,
		DeviceClass: s.DeviceClass,
		StateClass:  s.StateClass,
		Icon:        s.Icon,
	}

	v, err := s.Compute(snap, now)
	if err != nil {
		metrics.IncrValueUnavailable(s.Key)
		logger.Debug("sensor unavailable", zap.String("sensor", s.Key), zap.Error(err))
		resp.Reason = err.Error()
		var unavailable *domain.ErrValueUnavailable
		if errors.As(err, &unavailable) {
			resp.Reason = unavailable.Reason
		}
		return resp
	}

	resp.Available = true
	resp.State = v.State
	resp.Attributes = v.Attributes
	return resp
}

func listSensorsHandler(coord *service.Coordinator, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/sensors")
		defer span.End()

		snap, snapAt, ok := coord.Snapshot()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no account snapshot yet")
			return
		}

		now := localtime.Now()
		catalogue := sensor.Catalogue()
		sensors := make([]sensorResponse, 0, len(catalogue))
		for _, s := range catalogue {
			sensors = append(sensors, renderSensor(s, snap, now, metrics, logger))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"snapshot_at": snapAt.Format(time.RFC3339),
			"sensors":     sensors,
		})
	}
}

func getSensorHandler(coord *service.Coordinator, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/sensors/{sensorKey}")
		defer span.End()

		key := chi.URLParam(r, "sensorKey")
		span.SetAttributes(attribute.String("sensor.key", key))

		s, found := sensor.Lookup(key)
		if !found {
			writeError(w, http.StatusNotFound, "unknown sensor: "+key)
			return
		}

		snap, _, ok := coord.Snapshot()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no account snapshot yet")
			return
		}

		writeJSON(w, http.StatusOK, renderSensor(s, snap, localtime.Now(), metrics, logger))
	}
}

func accountStatusHandler(coord *service.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/account")
		defer span.End()

		writeJSON(w, http.StatusOK, coord.Status())
	}
}

// refreshHandler forces a refresh cycle outside the schedule. Concurrent
// calls coalesce with any in-flight cycle.
func refreshHandler(coord *service.Coordinator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/refresh")
		defer span.End()

		if err := coord.Refresh(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, coord.Status())
	}
}

func healthzHandler(coord *service.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		st := coord.Status()
		if st.SnapshotAt == nil && st.LastError != "" {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  status,
			"account": st.AccountNumber,
		})
	}
}

// readyzHandler reports ready once a snapshot has been fetched: before that
// every sensor read would fail anyway.
func readyzHandler(coord *service.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := coord.Snapshot(); !ok {
			writeError(w, http.StatusServiceUnavailable, "no account snapshot yet")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}
