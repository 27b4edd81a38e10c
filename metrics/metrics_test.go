package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sanchxt/yoop-sub002/yerr"
)

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	m.AddBytesTransferred("send", 1024)
	m.SessionStarted("share")
	m.SessionCompleted("share", "ok", 1.5)
	m.RecordError(yerr.New(yerr.KindConnectionLost, "boom"))
	m.DiscoveryAnnounced()
	m.DiscoveryLookup()
	m.SyncEvent("create")
}

func TestMetricsRecordsAndServesHandler(t *testing.T) {
	m := New()
	m.AddBytesTransferred("send", 2048)
	m.SessionStarted("sync")
	m.SessionCompleted("sync", "ok", 0.25)
	m.RecordError(yerr.New(yerr.KindChecksumMismatch, "mismatch"))
	m.DiscoveryAnnounced()
	m.SyncEvent("conflict")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"yoop_transfer_bytes_total",
		"yoop_session_started_total",
		"yoop_session_completed_total",
		"yoop_errors_total",
		"yoop_discovery_announces_total",
		"yoop_sync_events_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected exposition output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestRecordErrorIgnoresNilError(t *testing.T) {
	m := New()
	m.RecordError(nil)
}
