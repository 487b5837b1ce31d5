package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return context.DeadlineExceeded }

	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantDB   string
		wantNode string
		wantWS   string
	}{
		{
			name: "all_ok",
			checker: Checker{
				DBPing:      ok,
				NodePing:    ok,
				WSConnected: func() bool { return true },
			},
			wantCode: http.StatusOK,
			wantDB:   "ok",
			wantNode: "ok",
			wantWS:   "ok",
		},
		{
			name: "db_fail",
			checker: Checker{
				DBPing:   fail,
				NodePing: ok,
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "fail",
			wantNode: "ok",
		},
		{
			name: "node_fail",
			checker: Checker{
				DBPing:   ok,
				NodePing: fail,
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "ok",
			wantNode: "fail",
		},
		{
			name: "ws_down",
			checker: Checker{
				DBPing:      ok,
				NodePing:    ok,
				WSConnected: func() bool { return false },
			},
			wantCode: http.StatusServiceUnavailable,
			wantDB:   "ok",
			wantNode: "ok",
			wantWS:   "fail",
		},
		{
			name:     "no_checkers",
			checker:  Checker{},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := Serve(":0", tt.checker)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = Shutdown(ctx, srv)
			}()

			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()

			srv.Handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}

			if resp["status"] != "ok" {
				t.Errorf("status = %q, want ok", resp["status"])
			}
			if tt.wantDB != "" && resp["db"] != tt.wantDB {
				t.Errorf("db = %q, want %q", resp["db"], tt.wantDB)
			}
			if tt.wantNode != "" && resp["node"] != tt.wantNode {
				t.Errorf("node = %q, want %q", resp["node"], tt.wantNode)
			}
			if tt.wantWS != "" && resp["ws"] != tt.wantWS {
				t.Errorf("ws = %q, want %q", resp["ws"], tt.wantWS)
			}
		})
	}
}
