package http

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"github.com/annie25726/perfume-assistant/internal/api/http/middleware"
	"github.com/annie25726/perfume-assistant/pkg/log"
	"github.com/annie25726/perfume-assistant/pkg/metrics"
)

func fixedNow() time.Time {
	return time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
}

func buildRouterForTest(t *testing.T, withJWT bool) (*server.Hertz, *Handler) {
	t.Helper()
	handler := NewHandler(&fakeChatter{}, newKB(t), log.Nop())
	handler.SetLearnedNotes(&fakeLearned{})
	handler.SetSessions(&fakeSessions{})
	r := NewRouter(handler, middleware.NewMiddleware())
	r.SetAudit(middleware.NewAuditMiddleware(middleware.NewLoggerSink(log.Nop())))
	if withJWT {
		auth, err := middleware.NewJWTAuth([]byte("test-key"), "s3cret", time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("NewJWTAuth: %v", err)
		}
		r.SetJWT(auth)
	}
	return r.Build(":0"), handler
}

func TestRouter_PublicRoutes(t *testing.T) {
	s, _ := buildRouterForTest(t, true)

	w := perform(s, "GET", "/api/health", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("GET /api/health status = %d, want 200", got)
	}

	body := []byte(`{"message":"推薦香水"}`)
	w = perform(s, "POST", "/api/chat", body, ut.Header{Key: "Content-Type", Value: "application/json"})
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("POST /api/chat status = %d, want 200", got)
	}

	w = perform(s, "GET", "/api/rag/stats", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("GET /api/rag/stats status = %d, want 200", got)
	}
}

func TestRouter_AdminRoutesOpenWithoutJWT(t *testing.T) {
	s, _ := buildRouterForTest(t, false)

	w := perform(s, "GET", "/api/learned", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("GET /api/learned status = %d, want 200", got)
	}
	w = perform(s, "POST", "/api/admin/login", []byte(`{}`))
	if got := w.Result().StatusCode(); got != 404 {
		t.Errorf("login without JWT status = %d, want 404", got)
	}
}

func TestRouter_AdminRoutesRequireToken(t *testing.T) {
	s, _ := buildRouterForTest(t, true)

	w := perform(s, "GET", "/api/learned", nil)
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("GET /api/learned without token status = %d, want 401", got)
	}
	w = perform(s, "POST", "/api/rag/ingest", nil)
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("POST /api/rag/ingest without token status = %d, want 401", got)
	}

	jsonHeader := ut.Header{Key: "Content-Type", Value: "application/json"}
	w = perform(s, "POST", "/api/admin/login", []byte(`{"password":"wrong"}`), jsonHeader)
	if got := w.Result().StatusCode(); got != 401 {
		t.Fatalf("login with wrong password status = %d, want 401", got)
	}

	w = perform(s, "POST", "/api/admin/login", []byte(`{"password":"s3cret"}`), jsonHeader)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("login status = %d, body %s", resp.StatusCode(), resp.Body())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body(), &login); err != nil || login.Token == "" {
		t.Fatalf("login body %s: %v", resp.Body(), err)
	}

	bearer := ut.Header{Key: "Authorization", Value: "Bearer " + login.Token}
	w = perform(s, "GET", "/api/learned", nil, bearer)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("GET /api/learned with token status = %d, want 200", got)
	}
	w = perform(s, "DELETE", "/api/sessions/s1", nil, bearer)
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("DELETE /api/sessions/s1 with token status = %d, want 200", got)
	}
}

func TestRouter_Metrics(t *testing.T) {
	s, _ := buildRouterForTest(t, false)
	metrics.ChatTurnsTotal.WithLabelValues("weather").Inc()

	w := perform(s, "GET", "/metrics", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("perfume_chat_turns_total")) {
		t.Errorf("metrics body missing chat turns counter: %s", resp.Body())
	}
}

func TestRouter_ServesUploads(t *testing.T) {
	s, handler := buildRouterForTest(t, false)
	dir := handler.kb.UploadDir()
	if err := os.WriteFile(filepath.Join(dir, "1-2-notes.txt"), []byte("岩蘭草"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := perform(s, "GET", "/uploads/1-2-notes.txt", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("GET /uploads status = %d", resp.StatusCode())
	}
	if string(resp.Body()) != "岩蘭草" {
		t.Errorf("GET /uploads body = %q", resp.Body())
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s, _ := buildRouterForTest(t, false)
	w := perform(s, "OPTIONS", "/api/chat", nil, ut.Header{Key: "Origin", Value: "http://localhost:3000"})
	resp := w.Result()
	if resp.StatusCode() != 204 {
		t.Errorf("OPTIONS status = %d, want 204", resp.StatusCode())
	}
	if got := string(resp.Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
