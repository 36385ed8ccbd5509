package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nkalkhof/ThermoBeacon/internal/ble"
)

type snapshotter interface {
	Snapshot() []ble.Reading
}

// sinkPinger is satisfied by sink.Fanout.
type sinkPinger interface {
	Ping(ctx context.Context) map[string]error
}

type Deps struct {
	Readings snapshotter
	Sinks    sinkPinger
	Metrics  http.Handler
	Logger   *slog.Logger
}

func NewMux(d Deps) *http.ServeMux {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz(d.Sinks, d.Logger))
	if d.Readings != nil {
		mux.HandleFunc("GET /readings", handleReadings(d.Readings, d.Logger))
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}
	return mux
}

func NewServer(addr string, mux *http.ServeMux, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Sinks  map[string]string `json:"sinks,omitempty"`
}

func handleHealthz(sinks sinkPinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if sinks != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			resp.Sinks = make(map[string]string)
			for name, err := range sinks.Ping(ctx) {
				if err != nil {
					logger.Warn("sink unhealthy", "sink", name, "error", err)
					resp.Sinks[name] = err.Error()
					resp.Status = "degraded"
					continue
				}
				resp.Sinks[name] = "ok"
			}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp, logger)
	}
}

func handleReadings(s snapshotter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		readings := s.Snapshot()
		if readings == nil {
			readings = []ble.Reading{}
		}
		writeJSON(w, http.StatusOK, readings, logger)
	}
}
