package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/willowlabs/jane/internal/booking"
	"github.com/willowlabs/jane/internal/metrics"
	"github.com/willowlabs/jane/internal/policy"
	"github.com/willowlabs/jane/internal/session"
)

type fakeKB struct{}

func (fakeKB) SearchKnowledge(ctx context.Context, query string, limit int) ([]policy.KnowledgeEntry, error) {
	return []policy.KnowledgeEntry{{Category: "features", Content: "Willow AI books meetings for you.", Priority: 10}}, nil
}

func (fakeKB) QualificationQuestions(ctx context.Context, persona, category string) ([]string, error) {
	return []string{"Could you tell me about your company?"}, nil
}

func (fakeKB) ObjectionResponse(ctx context.Context, category string) (string, error) {
	return "Totally fair, here's how we're different.", nil
}

type fakeResponder struct{}

func (fakeResponder) Respond(ctx context.Context, system string, history []session.Message, userInput string) (policy.Reply, error) {
	return policy.Reply{Text: "Happy to help with that."}, nil
}

type stubCalendar struct{}

func (stubCalendar) ListAvailability(ctx context.Context, date string) ([]booking.Slot, error) {
	return nil, nil
}

func (stubCalendar) Book(ctx context.Context, req booking.Request) (booking.Confirmation, error) {
	return booking.Confirmation{ID: "bk_1", URL: "https://cal.example/bk_1"}, nil
}

func newTestServer(t *testing.T, apiToken string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewMemoryStore()
	flow := booking.NewFlow(stubCalendar{}, "https://cal.example/willow/intro", logger)
	engine := policy.NewEngine(sessions, fakeKB{}, fakeResponder{}, flow, logger)
	return NewServer(8760, apiToken, engine, sessions, Options{}, logger)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("GET", "/api/v1/jane/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["agent"] != "jane" {
		t.Errorf("expected agent jane, got %q", body["agent"])
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, "")

	// Create.
	req := httptest.NewRequest("POST", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	var created map[string]string
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	sessionID := created["session_id"]
	if sessionID == "" {
		t.Fatal("empty session_id")
	}

	// Start.
	req = httptest.NewRequest("POST", "/api/v1/sessions/"+sessionID+"/start", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}
	var greeting TurnResponse
	if err := json.NewDecoder(w.Body).Decode(&greeting); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if !strings.Contains(greeting.Text, "Jane") {
		t.Errorf("greeting = %q", greeting.Text)
	}
	if greeting.Stage != "greeting" {
		t.Errorf("stage = %q", greeting.Stage)
	}

	// Turn.
	body := strings.NewReader(`{"message": "we're a saas company struggling to convert leads"}`)
	req = httptest.NewRequest("POST", "/api/v1/sessions/"+sessionID+"/turn", body)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("turn: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var turn TurnResponse
	if err := json.NewDecoder(w.Body).Decode(&turn); err != nil {
		t.Fatalf("decode turn response: %v", err)
	}
	if turn.Kind != "qualification_prompt" {
		t.Errorf("kind = %q", turn.Kind)
	}
	if turn.Completion != 50 {
		t.Errorf("completion = %d, expected 50", turn.Completion)
	}

	// Summary.
	req = httptest.NewRequest("GET", "/api/v1/sessions/"+sessionID+"/summary", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", w.Code)
	}
	var sum policy.Summary
	if err := json.NewDecoder(w.Body).Decode(&sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.TurnCount != 1 {
		t.Errorf("turn count = %d", sum.TurnCount)
	}

	// Close.
	req = httptest.NewRequest("DELETE", "/api/v1/sessions/"+sessionID, nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", w.Code)
	}

	// Closed sessions are gone.
	req = httptest.NewRequest("GET", "/api/v1/sessions/"+sessionID+"/summary", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("summary after close: expected 404, got %d", w.Code)
	}
}

func TestTurnValidation(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/turn", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty message: expected 400, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/sessions/s1/turn", strings.NewReader(`not json`))
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: expected 400, got %d", w.Code)
	}
}

func TestTurnUnknownSession(t *testing.T) {
	srv := newTestServer(t, "")

	body := strings.NewReader(`{"message": "hello"}`)
	req := httptest.NewRequest("POST", "/api/v1/sessions/no-such-session/turn", body)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListSessionsAuth(t *testing.T) {
	srv := newTestServer(t, "secret-token")

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	// No database configured in this test server.
	if w.Code != http.StatusNotImplemented {
		t.Errorf("with token: expected 501, got %d", w.Code)
	}
}

func TestAudioNotConfigured(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/v1/sessions/s1/audio", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}

// emptyKB forces knowledge misses so product questions reach the generative
// fallback.
type emptyKB struct{ fakeKB }

func (emptyKB) SearchKnowledge(ctx context.Context, query string, limit int) ([]policy.KnowledgeEntry, error) {
	return nil, nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(subject string, payload any) error {
	return errors.New("broker down")
}

func TestMetricsWiring(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewMemoryStore()
	flow := booking.NewFlow(stubCalendar{}, "https://cal.example/willow/intro", logger)
	engine := policy.NewEngine(sessions, emptyKB{}, fakeResponder{}, flow, logger)
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	srv := NewServer(8760, "", engine, sessions, Options{Metrics: m, Publisher: failingPublisher{}}, logger)

	do := func(method, path string, body io.Reader) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(method, path, body)
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		return w
	}

	if w := do("POST", "/api/v1/sessions/m1/start", nil); w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}

	scrape := func() string {
		t.Helper()
		w := do("GET", "/metrics", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("metrics: expected 200, got %d", w.Code)
		}
		return w.Body.String()
	}

	if body := scrape(); !strings.Contains(body, "jane_sessions_active 1") {
		t.Errorf("after start: missing active gauge of 1:\n%s", body)
	}

	// Knowledge miss routes through the fallback responder.
	turn := strings.NewReader(`{"message": "how does this actually work?"}`)
	if w := do("POST", "/api/v1/sessions/m1/turn", turn); w.Code != http.StatusOK {
		t.Fatalf("turn: expected 200, got %d", w.Code)
	}

	// Closing emits session.closed, which the broken publisher rejects.
	if w := do("DELETE", "/api/v1/sessions/m1", nil); w.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", w.Code)
	}

	body := scrape()
	for _, want := range []string{
		"jane_sessions_active 0",
		"jane_sessions_closed_total 1",
		"jane_event_publish_errors_total 1",
		`jane_fallbacks_total{outcome="success"} 1`,
		`jane_turns_total{kind="fallback"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q:\n%s", want, body)
		}
	}
}

func TestWebSocketConversation(t *testing.T) {
	srv := newTestServer(t, "")
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/ws-test-session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Greeting arrives on connect.
	var greeting agentFrame
	if err := conn.ReadJSON(&greeting); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if greeting.Type != "agent_response" {
		t.Fatalf("greeting type = %q", greeting.Type)
	}
	if !strings.Contains(greeting.Text, "Jane") {
		t.Errorf("greeting text = %q", greeting.Text)
	}

	// One text turn.
	if err := conn.WriteJSON(clientFrame{Type: "message", Text: "can I see a demo?"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	var reply agentFrame
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Kind != "demo_offer" {
		t.Errorf("kind = %q", reply.Kind)
	}
	if reply.Media != nil {
		t.Errorf("demo media before agreement: %+v", reply.Media)
	}

	// Unknown frame types report an error without killing the connection.
	if err := conn.WriteJSON(clientFrame{Type: "bogus"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	var errFrame agentFrame
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame.Type != "error" {
		t.Errorf("frame type = %q", errFrame.Type)
	}
}
