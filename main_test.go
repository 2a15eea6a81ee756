package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oszuidwest/zwfm-autorecorder/internal/control"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.10.0", "1.9.0", true},
		{"1.2.0", "1.2.0", false},
		{"1.1.0", "v1.2.0", false},
	}
	for _, tt := range tests {
		if got := isNewerVersion(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
	if got := normalizeVersion(" v2.0.1 "); got != "2.0.1" {
		t.Errorf("normalizeVersion = %q", got)
	}
}

type staticHub struct{}

func (staticHub) Serve(conn control.Conn) error { return conn.Close() }
func (staticHub) Latest() types.Status          { return types.DefaultStatus }
func (staticHub) Connections() int              { return 0 }

func TestSecurityHeaders(t *testing.T) {
	srv := NewServer(0, staticHub{}, "", 0)
	defer srv.Stop()

	rec := httptest.NewRecorder()
	srv.SetupRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestVersionCheckUsesETag(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Header.Get("If-None-Match"))
		if r.Header.Get("If-None-Match") == `"v2"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v2"`)
		_, _ = io.WriteString(w, `{"tag_name": "v2.0.0"}`)
	}))
	defer srv.Close()

	vc := &VersionChecker{url: srv.URL, client: srv.Client()}
	if got := vc.check(context.Background()); got != checkDone {
		t.Fatalf("first check = %v", got)
	}
	if got := vc.check(context.Background()); got != checkDone {
		t.Fatalf("second check = %v", got)
	}
	if len(requests) != 2 || requests[0] != "" || requests[1] != `"v2"` {
		t.Errorf("If-None-Match headers = %q", requests)
	}
	if info := vc.Info(); info.Latest != "2.0.0" {
		t.Errorf("latest = %q", info.Latest)
	}
}

func TestVersionCheckRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	vc := &VersionChecker{url: srv.URL, client: srv.Client()}
	if got := vc.check(context.Background()); got != checkRetry {
		t.Errorf("check = %v, want retry", got)
	}
}
