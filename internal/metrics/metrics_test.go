package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRecordAndScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordTurn("qualification_prompt", 120*time.Millisecond)
	m.RecordTurn("booking_step", 80*time.Millisecond)
	m.RecordFallback(true)
	m.RecordFallback(false)
	m.RecordAudioTurn(true)
	m.RecordMediaShown("demo")
	m.SessionsStarted.Inc()
	m.MeetingsBooked.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`jane_turns_total{kind="qualification_prompt"} 1`,
		`jane_turns_total{kind="booking_step"} 1`,
		`jane_fallbacks_total{outcome="success"} 1`,
		`jane_fallbacks_total{outcome="failure"} 1`,
		`jane_audio_turns_total{outcome="success"} 1`,
		`jane_media_shown_total{media_type="demo"} 1`,
		`jane_sessions_started_total 1`,
		`jane_meetings_booked_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
