package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/api/download", "/api/download"},
		{"/api/solarwind/current", "/api/solarwind/current"},

		// job ids collapse to one label
		{"/api/jobs/0b3c1f7e-1111-2222-3333-444455556666", "/api/jobs/{id}"},
		{"/api/jobs/abc", "/api/jobs/{id}"},

		{"/files/data/0171/2024-01-01.jpg", "/files/*"},

		{"/wp-admin", "other"},
		{"/.env", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizeRoute(tt.path); got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/download", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 passed through, got %d", rec.Code)
	}

	ObserveImage("0171", OutcomeDownloaded, 2048)
	ObserveImage("0171", OutcomeSkipped, 0)
	ObserveVideoEncode("ffmpeg", errors.New("exit 1"), time.Second)
	ObserveSolarWind(true)
	ObserveCorruptedDeleted(2)

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`solarimager_http_requests_total{code="409",method="POST",path="/api/download"}`,
		`solarimager_images_total{filter="0171",outcome="downloaded"}`,
		`solarimager_image_bytes_total{filter="0171"}`,
		`solarimager_video_encodes_total{encoder="ffmpeg",result="error"}`,
		`solarimager_solarwind_fetches_total{kind="synthetic"}`,
		`solarimager_corrupted_files_deleted_total`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %s", want)
		}
	}
}
