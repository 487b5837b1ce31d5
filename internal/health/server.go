package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker bundles the liveness probes exposed on /healthz.
type Checker struct {
	DBPing   func(ctx context.Context) error
	NodePing func(ctx context.Context) error
	// WSConnected reports whether the subscription socket is up.
	WSConnected func() bool
}

// Serve starts a minimal /healthz handler.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			if err := checker.DBPing(ctx); err != nil {
				status["db"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["db"] = "ok"
			}
		}
		if checker.NodePing != nil {
			if err := checker.NodePing(ctx); err != nil {
				status["node"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["node"] = "ok"
			}
		}
		if checker.WSConnected != nil {
			if checker.WSConnected() {
				status["ws"] = "ok"
			} else {
				status["ws"] = "fail"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
