package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/internal/learning"
	"github.com/annie25726/perfume-assistant/internal/pipeline/chat"
	"github.com/annie25726/perfume-assistant/internal/pipeline/common"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/internal/runtime/session"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

type fakeChatter struct {
	got chat.Request
}

func (f *fakeChatter) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	f.got = req
	if strings.TrimSpace(req.Message) == "" {
		return nil, common.NewValidationError("message", common.ErrEmptyMessage.Error())
	}
	return &chat.Response{
		OK:          true,
		SessionID:   "s1",
		Type:        "text",
		Reply:       "木質調很適合秋天",
		Engine:      chat.EnginePrimary,
		Suggestions: []string{"推薦香水"},
	}, nil
}

type fakeLearned struct {
	notes []learning.Note
}

func (f *fakeLearned) ListLearned(ctx context.Context) ([]learning.Note, error) {
	return f.notes, nil
}

func (f *fakeLearned) LearnedDocs(ctx context.Context) ([]retrieval.LearnedDoc, error) {
	docs := make([]retrieval.LearnedDoc, 0, len(f.notes))
	for _, n := range f.notes {
		docs = append(docs, n.Doc())
	}
	return docs, nil
}

type fakeSessions struct {
	reset []string
}

func (f *fakeSessions) Reset(ctx context.Context, id string) error {
	f.reset = append(f.reset, id)
	return nil
}

func newKB(t *testing.T) *retrieval.Store {
	t.Helper()
	return retrieval.NewStore(retrieval.NewMemoryBackend(), retrieval.WithUploadDir(t.TempDir()))
}

func perform(h *server.Hertz, method, path string, body []byte, headers ...ut.Header) *ut.ResponseRecorder {
	return ut.PerformRequest(h.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)}, headers...)
}

func TestHealthCheck(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, nil, log.Nop())
	h.GET("/api/health", func(ctx context.Context, c *app.RequestContext) {
		handler.HealthCheck(ctx, c)
	})
	w := perform(h, "GET", "/api/health", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ok")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestChat(t *testing.T) {
	fc := &fakeChatter{}
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(fc, nil, log.Nop())
	h.POST("/api/chat", handler.Chat)

	body := []byte(`{"message":"秋天適合什麼香水","sessionId":"s1"}`)
	w := perform(h, "POST", "/api/chat", body, ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode(), "body: %s", resp.Body())
	assert.Equal(t, "s1", fc.got.SessionID)

	var got chat.Response
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.True(t, got.OK)
	assert.Equal(t, "木質調很適合秋天", got.Reply)
	assert.Equal(t, chat.EnginePrimary, got.Engine)
	assert.Equal(t, []string{"推薦香水"}, got.Suggestions)
	assert.NotContains(t, string(resp.Body()), "modelInfo")
}

func TestChat_EmptyMessage(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(&fakeChatter{}, nil, log.Nop())
	h.POST("/api/chat", handler.Chat)

	for _, body := range [][]byte{[]byte(`{"message":"   "}`), nil} {
		w := perform(h, "POST", "/api/chat", body, ut.Header{Key: "Content-Type", Value: "application/json"})
		resp := w.Result()
		if resp.StatusCode() != 400 {
			t.Errorf("empty message status = %d, want 400", resp.StatusCode())
		}
		if !bytes.Contains(resp.Body(), []byte(`"ok":false`)) || !bytes.Contains(resp.Body(), []byte("訊息不可為空")) {
			t.Errorf("empty message body: %s", resp.Body())
		}
	}
}

func TestChat_BadJSON(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(&fakeChatter{}, nil, log.Nop())
	h.POST("/api/chat", handler.Chat)

	w := perform(h, "POST", "/api/chat", []byte(`{"message":`), ut.Header{Key: "Content-Type", Value: "application/json"})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("bad json status = %d, want 400", got)
	}
}

func TestChat_Unavailable(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, nil, log.Nop())
	h.POST("/api/chat", handler.Chat)

	w := perform(h, "POST", "/api/chat", []byte(`{"message":"hi"}`))
	if got := w.Result().StatusCode(); got != 503 {
		t.Errorf("status = %d, want 503", got)
	}
}

type brokenChatter struct{}

func (brokenChatter) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return nil, common.NewPipelineError(common.StageStart, common.ErrSessionFailed.Error(), os.ErrPermission)
}

func TestChat_InternalErrorStillReplies(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(brokenChatter{}, nil, log.Nop())
	h.POST("/api/chat", handler.Chat)

	w := perform(h, "POST", "/api/chat", []byte(`{"message":"推薦約會香水","sessionId":"s1"}`), ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	require.Equal(t, 500, resp.StatusCode())
	assert.NotContains(t, string(resp.Body()), "[Pipeline]")

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Equal(t, false, got["ok"])
	assert.Equal(t, chat.ApologyReply, got["reply"])
	assert.Equal(t, chat.EngineError, got["engine"])
}

func TestChat_FileSessionsRejectedID(t *testing.T) {
	ctx := context.Background()
	kb := newKB(t)
	_, err := kb.AddChunk(ctx, "推薦約會香水：玫瑰調最浪漫", "kb.md", nil)
	require.NoError(t, err)
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	responder := chat.NewResponder(chat.Deps{Sessions: session.NewManager(store, 0), Retriever: kb}, chat.Options{}, log.Nop())

	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(responder, kb, log.Nop())
	h.POST("/api/chat", handler.Chat)

	w := perform(h, "POST", "/api/chat", []byte(`{"message":"推薦約會香水","sessionId":"u.1"}`), ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode(), "body: %s", resp.Body())

	var got chat.Response
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.True(t, got.OK)
	assert.Contains(t, got.Reply, "玫瑰調")
	assert.Equal(t, chat.EngineRetrievalOnly, got.Engine)
	assert.NotEqual(t, "u.1", got.SessionID)
	assert.NotEmpty(t, got.SessionID)
}

func multipartBody(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	kb := newKB(t)
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, kb, log.Nop())
	h.POST("/api/upload", handler.Upload)

	body, ct := multipartBody(t, map[string]string{"notes.txt": "檀香 雪松 木質調"})
	w := perform(h, "POST", "/api/upload", body, ut.Header{Key: "Content-Type", Value: ct})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode(), "body: %s", resp.Body())

	var got struct {
		OK      bool           `json:"ok"`
		Files   []UploadedFile `json:"files"`
		Message string         `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.True(t, got.OK)
	assert.Equal(t, "成功上傳 1 個檔案", got.Message)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "notes.txt", got.Files[0].Name)
	assert.True(t, strings.HasPrefix(got.Files[0].URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(got.Files[0].URL, "-notes.txt"))

	data, err := os.ReadFile(got.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "檀香 雪松 木質調", string(data))
	assert.Equal(t, kb.UploadDir(), filepath.Dir(got.Files[0].Path))
}

func TestUpload_Limits(t *testing.T) {
	kb := newKB(t)
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, kb, log.Nop())
	handler.SetMaxUploadSize(4)
	h.POST("/api/upload", handler.Upload)

	body, ct := multipartBody(t, map[string]string{"big.txt": "0123456789"})
	w := perform(h, "POST", "/api/upload", body, ut.Header{Key: "Content-Type", Value: ct})
	if got := w.Result().StatusCode(); got != 413 {
		t.Errorf("oversized upload status = %d, want 413", got)
	}

	body, ct = multipartBody(t, map[string]string{})
	w = perform(h, "POST", "/api/upload", body, ut.Header{Key: "Content-Type", Value: ct})
	if got := w.Result().StatusCode(); got != 400 {
		t.Errorf("empty upload status = %d, want 400", got)
	}

	entries, _ := os.ReadDir(kb.UploadDir())
	if len(entries) != 0 {
		t.Errorf("rejected uploads left %d files behind", len(entries))
	}
}

func TestIngestAndStats(t *testing.T) {
	kb := newKB(t)
	require.NoError(t, os.WriteFile(filepath.Join(kb.UploadDir(), "a.md"), []byte("柑橘調清爽"), 0o644))
	learned := &fakeLearned{notes: []learning.Note{
		learning.BuildNote("夏天香水", "夏天適合柑橘調與水生調，清爽不悶熱。", []string{"perfume"}, fixedNow()),
	}}

	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, kb, log.Nop())
	handler.SetLearnedNotes(learned)
	h.POST("/api/rag/ingest", handler.Ingest)
	h.GET("/api/rag/stats", handler.Stats)

	w := perform(h, "POST", "/api/rag/ingest", nil)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode(), "body: %s", resp.Body())
	var ing struct {
		Uploads retrieval.IngestResult `json:"uploads"`
		Learned retrieval.IngestResult `json:"learned"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &ing))
	assert.Equal(t, retrieval.IngestResult{Scanned: 1, Added: 1}, ing.Uploads)
	assert.Equal(t, retrieval.IngestResult{Scanned: 1, Added: 1}, ing.Learned)

	w = perform(h, "GET", "/api/rag/stats", nil)
	var st struct {
		Stats retrieval.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &st))
	assert.Equal(t, retrieval.Stats{Documents: 2, Learned: 1}, st.Stats)
}

func TestListLearned(t *testing.T) {
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, nil, log.Nop())
	h.GET("/api/learned", handler.ListLearned)

	w := perform(h, "GET", "/api/learned", nil)
	if got := w.Result().StatusCode(); got != 503 {
		t.Errorf("without learning status = %d, want 503", got)
	}

	handler.SetLearnedNotes(&fakeLearned{})
	w = perform(h, "GET", "/api/learned", nil)
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte(`"notes":[]`)) {
		t.Errorf("empty list should encode as []: %s", resp.Body())
	}
}

func TestResetSession(t *testing.T) {
	fs := &fakeSessions{}
	h := server.Default(server.WithHostPorts(":0"))
	handler := NewHandler(nil, nil, log.Nop())
	handler.SetSessions(fs)
	h.DELETE("/api/sessions/:id", handler.ResetSession)

	w := perform(h, "DELETE", "/api/sessions/abc", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("status = %d, want 200", got)
	}
	assert.Equal(t, []string{"abc"}, fs.reset)
}
