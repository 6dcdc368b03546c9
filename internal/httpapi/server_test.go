package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clintwin/pillfinder/internal/catalog"
	"github.com/clintwin/pillfinder/internal/config"
	"github.com/clintwin/pillfinder/internal/identify"
	"github.com/clintwin/pillfinder/internal/observability"
	"github.com/clintwin/pillfinder/internal/phrase"
)

func testRecords() []catalog.MedicineRecord {
	return []catalog.MedicineRecord{
		{ID: "panadol", Name: "Panadol", DosageForm: "tablet", Attributes: map[string]string{"box_primary_color": "red", "tablet_shape": "round"}},
		{ID: "brufen", Name: "Brufen", DosageForm: "tablet", Attributes: map[string]string{"box_primary_color": "red", "tablet_shape": "oblong"}},
		{ID: "telfast", Name: "Telfast", DosageForm: "tablet", Attributes: map[string]string{"box_primary_color": "blue", "tablet_shape": "round"}},
		{ID: "zyrtec", Name: "Zyrtec", DosageForm: "tablet", Attributes: map[string]string{"box_primary_color": "blue", "tablet_shape": "oblong"}},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		MaxQuestions:             3,
		ConfidenceThreshold:      0.90,
		MaxAlternatives:          3,
	}
	records := testRecords()
	manager := identify.NewManager(cfg.SessionInactivityTimeout)
	chain := phrase.NewChain(nil, time.Second, nil)
	engine, err := identify.NewEngine(records, manager, chain, nil, identify.Config{
		MaxQuestions:        cfg.MaxQuestions,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxAlternatives:     cfg.MaxAlternatives,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	srv := New(cfg, engine, nil, len(records), "embedded")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(payload)
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response from %s: %v", url, err)
	}
	return res, decoded
}

func TestIdentifyFlow(t *testing.T) {
	ts := newTestServer(t)

	res, start := postJSON(t, ts.URL+"/v1/identify/start", map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	sessionID, _ := start["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id: %+v", start)
	}
	question, ok := start["question"].(map[string]any)
	if !ok {
		t.Fatalf("missing question: %+v", start)
	}
	questionID, _ := question["question_id"].(string)
	if questionID == "" {
		t.Fatalf("missing question_id: %+v", question)
	}

	res, next := postJSON(t, ts.URL+"/v1/identify/answer", map[string]string{
		"session_id":  sessionID,
		"question_id": questionID,
		"answer":      "Red",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d, body %+v", res.StatusCode, next)
	}
	if next["type"] != "question" {
		t.Fatalf("type = %v, want question", next["type"])
	}
	if rc, _ := next["remaining_candidates"].(float64); rc != 2 {
		t.Fatalf("remaining_candidates = %v, want 2", next["remaining_candidates"])
	}
	nextQuestion := next["question"].(map[string]any)

	res, final := postJSON(t, ts.URL+"/v1/identify/answer", map[string]string{
		"session_id":  sessionID,
		"question_id": nextQuestion["question_id"].(string),
		"answer":      "Round",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("final answer status = %d, body %+v", res.StatusCode, final)
	}
	if final["type"] != "result" || final["success"] != true {
		t.Fatalf("result = %+v, want successful result", final)
	}
	top := final["top_match"].(map[string]any)["medicine"].(map[string]any)
	if top["id"] != "panadol" {
		t.Fatalf("top match = %v, want panadol", top["id"])
	}

	getRes, err := http.Get(ts.URL + "/v1/identify/session/" + sessionID)
	if err != nil {
		t.Fatalf("get session error = %v", err)
	}
	defer getRes.Body.Close()
	var view map[string]any
	if err := json.NewDecoder(getRes.Body).Decode(&view); err != nil {
		t.Fatalf("decode session view: %v", err)
	}
	if view["status"] != "completed" {
		t.Fatalf("status = %v, want completed", view["status"])
	}
	if _, ok := view["result"]; !ok {
		t.Fatalf("completed session view missing result: %+v", view)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/identify/session/"+sessionID, nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session error = %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", delRes.StatusCode, http.StatusOK)
	}

	goneRes, err := http.Get(ts.URL + "/v1/identify/session/" + sessionID)
	if err != nil {
		t.Fatalf("get after delete error = %v", err)
	}
	goneRes.Body.Close()
	if goneRes.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", goneRes.StatusCode, http.StatusNotFound)
	}
}

func TestAnswerValidation(t *testing.T) {
	ts := newTestServer(t)

	res, body := postJSON(t, ts.URL+"/v1/identify/answer", map[string]string{"answer": "Red"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing session_id status = %d, body %+v", res.StatusCode, body)
	}

	res, body = postJSON(t, ts.URL+"/v1/identify/answer", map[string]string{
		"session_id": "does-not-exist",
		"answer":     "Red",
	})
	if res.StatusCode != http.StatusNotFound || body["code"] != "session_not_found" {
		t.Fatalf("unknown session = %d %v, want 404 session_not_found", res.StatusCode, body["code"])
	}

	_, start := postJSON(t, ts.URL+"/v1/identify/start", map[string]any{})
	sessionID := start["session_id"].(string)

	res, body = postJSON(t, ts.URL+"/v1/identify/answer", map[string]string{
		"session_id": sessionID,
		"answer":     "Purple",
	})
	if res.StatusCode != http.StatusBadRequest || body["code"] != "invalid_answer" {
		t.Fatalf("bad option = %d %v, want 400 invalid_answer", res.StatusCode, body["code"])
	}

	res, body = postJSON(t, ts.URL+"/v1/identify/answer", map[string]string{
		"session_id":  sessionID,
		"question_id": "long-gone",
		"answer":      "Red",
	})
	if res.StatusCode != http.StatusBadRequest || body["code"] != "stale_question" {
		t.Fatalf("stale question = %d %v, want 400 stale_question", res.StatusCode, body["code"])
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", res.StatusCode)
	}
	var health map[string]any
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["catalog_size"].(float64) != 4 || health["catalog_mode"] != "embedded" {
		t.Fatalf("healthz = %+v", health)
	}

	ready, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", ready.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Unique namespace per test run: promauto registers globally.
	_ = observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", time.Now().UnixNano()))
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", res.StatusCode)
	}

	// The test server runs without metrics wired; the stats window is off.
	stats, err := http.Get(ts.URL + "/v1/identify/stats")
	if err != nil {
		t.Fatalf("GET /v1/identify/stats error = %v", err)
	}
	stats.Body.Close()
	if stats.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("stats status = %d, want %d", stats.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestIdentifyWebSocket(t *testing.T) {
	ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/identify/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s error = %v", wsURL, err)
	}
	defer conn.Close()

	readFrame := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return frame
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_start"}); err != nil {
		t.Fatalf("write client_start: %v", err)
	}
	frame := readFrame()
	if frame["type"] != "question" {
		t.Fatalf("frame = %+v, want question", frame)
	}
	sessionID := frame["session_id"].(string)
	question := frame["question"].(map[string]any)

	if err := conn.WriteJSON(map[string]string{
		"type":        "client_answer",
		"session_id":  sessionID,
		"question_id": question["question_id"].(string),
		"answer":      "Red",
	}); err != nil {
		t.Fatalf("write client_answer: %v", err)
	}
	frame = readFrame()
	if frame["type"] != "question" {
		t.Fatalf("frame = %+v, want second question", frame)
	}

	if err := conn.WriteJSON(map[string]string{"type": "client_end", "session_id": sessionID}); err != nil {
		t.Fatalf("write client_end: %v", err)
	}
	frame = readFrame()
	if frame["type"] != "session_ended" {
		t.Fatalf("frame = %+v, want session_ended", frame)
	}

	// A second start on the same connection is refused.
	if err := conn.WriteJSON(map[string]string{"type": "client_start"}); err != nil {
		t.Fatalf("write second client_start: %v", err)
	}
	frame = readFrame()
	if frame["type"] != "error_event" || frame["code"] != "session_already_started" {
		t.Fatalf("frame = %+v, want session_already_started error", frame)
	}
}
