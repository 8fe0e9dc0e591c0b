package api

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/internal/app"
	"github.com/annie25726/perfume-assistant/pkg/config"
)

func newTestApp(t *testing.T, mutate func(cfg *config.Config)) *App {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Log.Level = "error"
	cfg.Model.Primary.APIKey = ""
	cfg.Model.Escalation.APIKey = ""
	cfg.MCP.AccountingSSEURL = ""
	cfg.Session.Store = "memory"
	cfg.RAG.StorePath = filepath.Join(dir, "rag.json")
	cfg.API.UploadDir = filepath.Join(dir, "uploads")
	cfg.Learning.Dir = filepath.Join(dir, "learned")
	cfg.Learning.EventLog = ""
	if mutate != nil {
		mutate(cfg)
	}
	b, err := app.NewBootstrap(cfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	a, err := NewApp(b)
	require.NoError(t, err)
	return a
}

func TestNewApp_RoutesWired(t *testing.T) {
	a := newTestApp(t, nil)
	h := a.router.Build(":0")

	w := ut.PerformRequest(h.Engine, "GET", "/api/learned", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("GET /api/learned status = %d, want 200", got)
	}
	w = ut.PerformRequest(h.Engine, "GET", "/api/rag/stats", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 200 {
		t.Errorf("GET /api/rag/stats status = %d, want 200", got)
	}
}

func TestNewApp_JWTProtectsAdmin(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) {
		cfg.API.Middleware.Auth = true
		cfg.API.Middleware.JWTKey = "k"
		cfg.API.Middleware.AdminPassword = "p"
	})
	h := a.router.Build(":0")

	w := ut.PerformRequest(h.Engine, "GET", "/api/learned", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if got := w.Result().StatusCode(); got != 401 {
		t.Errorf("GET /api/learned without token status = %d, want 401", got)
	}
}

func TestNewApp_Watcher(t *testing.T) {
	a := newTestApp(t, func(cfg *config.Config) { cfg.RAG.WatchUploads = true })
	if a.watcher == nil {
		t.Fatal("watch_uploads=true should create an upload watcher")
	}
	a.watcher.Stop()
}
