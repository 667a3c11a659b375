package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"healthd-ng/internal/charging"
)

// ChargingController is what the web API needs from the charging control.
// Implementations must be safe to call concurrently.
type ChargingController interface {
	GetEnabled() (bool, error)
	SetEnabled(enabled bool) error
	Node() (charging.ControlNode, bool)
	Candidates() charging.Registry
}

type chargingState struct {
	OK      bool `json:"ok,omitempty"`
	Enabled bool `json:"enabled"`
}

type setChargingRequest struct {
	Enabled *bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func Handler(status *Status, ctl ChargingController, logs *LogBuffer) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC(), ctl))
		})

		r.Get("/charging", func(w http.ResponseWriter, r *http.Request) {
			if ctl == nil {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "charging control unavailable"})
				return
			}
			v, err := ctl.GetEnabled()
			if err != nil {
				writeChargingError(w, err)
				return
			}
			w.Header().Set("Cache-Control", "no-store")
			writeJSON(w, http.StatusOK, chargingState{Enabled: v})
		})

		setCharging := func(w http.ResponseWriter, r *http.Request) {
			if ctl == nil {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "charging control unavailable"})
				return
			}
			var req setChargingRequest
			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid body: %v", err)})
				return
			}
			if req.Enabled == nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "enabled is required"})
				return
			}
			if err := ctl.SetEnabled(*req.Enabled); err != nil {
				writeChargingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, chargingState{OK: true, Enabled: *req.Enabled})
		}
		r.Put("/charging", setCharging)
		r.Post("/charging", setCharging)

		if logs != nil {
			r.Method(http.MethodGet, "/logs", logs.Handler())
		}
		r.Method(http.MethodGet, "/about", AboutHandler())
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		snap := status.Snapshot(time.Now().UTC(), ctl)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>healthd-ng</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>healthd-ng</h1>")
		_, _ = fmt.Fprintf(w, "<p>API: <a href=\"/api/status\">/api/status</a>, <a href=\"/api/charging\">/api/charging</a>, <a href=\"/api/logs?format=text\">/api/logs</a></p>")
		node := "none"
		if snap.Charging.Node != nil {
			node = snap.Charging.Node.String()
		}
		enabled := "unknown"
		if snap.Charging.Enabled != nil {
			enabled = fmt.Sprintf("%t", *snap.Charging.Enabled)
		}
		_, _ = fmt.Fprintf(w, "<pre>node=%s\ncharging_enabled=%s\nuptime_sec=%d</pre>", node, enabled, snap.UptimeSec)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return r
}

// writeChargingError maps charging failures onto HTTP: a missing node is 501,
// an unusable node 503.
func writeChargingError(w http.ResponseWriter, err error) {
	kind := charging.KindOf(err)
	code := http.StatusServiceUnavailable
	if kind == charging.KindUnsupportedOperation {
		code = http.StatusNotImplemented
	}
	resp := errorResponse{Error: err.Error()}
	if kind != 0 {
		resp.Kind = kind.String()
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
