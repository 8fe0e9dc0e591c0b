// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/annie25726/perfume-assistant/internal/learning"
	"github.com/annie25726/perfume-assistant/internal/pipeline/chat"
	"github.com/annie25726/perfume-assistant/internal/pipeline/common"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/pkg/log"
	"github.com/annie25726/perfume-assistant/pkg/metrics"
)

const (
	// MaxUploadFiles 单次上传的文件数上限
	MaxUploadFiles = 10
	// DefaultMaxUploadSize 单文件 10MB
	DefaultMaxUploadSize int64 = 10 * 1024 * 1024
)

// Chatter 对话入口
type Chatter interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// KnowledgeBase 检索库管理
type KnowledgeBase interface {
	UploadDir() string
	IngestUploads(ctx context.Context) (retrieval.IngestResult, error)
	IngestLearned(ctx context.Context, notes []retrieval.LearnedDoc) (retrieval.IngestResult, error)
	Stats(ctx context.Context) (retrieval.Stats, error)
}

// LearnedNotes 学习笔记来源
type LearnedNotes interface {
	ListLearned(ctx context.Context) ([]learning.Note, error)
	LearnedDocs(ctx context.Context) ([]retrieval.LearnedDoc, error)
}

// SessionResetter 清除会话
type SessionResetter interface {
	Reset(ctx context.Context, id string) error
}

// Handler HTTP 处理器
type Handler struct {
	chat          Chatter
	kb            KnowledgeBase
	learned       LearnedNotes
	sessions      SessionResetter
	maxUploadSize int64
	logger        *log.Logger
}

// NewHandler 创建处理器；未装配的依赖在对应接口返回 503
func NewHandler(chatter Chatter, kb KnowledgeBase, logger *log.Logger) *Handler {
	return &Handler{
		chat:          chatter,
		kb:            kb,
		maxUploadSize: DefaultMaxUploadSize,
		logger:        logger.Component("http"),
	}
}

// SetLearnedNotes 设置学习笔记来源（可选）
func (h *Handler) SetLearnedNotes(l LearnedNotes) { h.learned = l }

// SetSessions 设置会话管理（可选，用于管理接口）
func (h *Handler) SetSessions(s SessionResetter) { h.sessions = s }

// SetMaxUploadSize 设置单文件大小上限，<=0 时保持默认
func (h *Handler) SetMaxUploadSize(n int64) {
	if n > 0 {
		h.maxUploadSize = n
	}
}

func fail(c *app.RequestContext, status int, msg string) {
	c.JSON(status, utils.H{"ok": false, "error": msg})
}

func unavailable(c *app.RequestContext, what string) {
	fail(c, consts.StatusServiceUnavailable, what+" 未启用")
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// Metrics 输出 Prometheus 文本格式
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	c.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	if err := metrics.WritePrometheus(c.Response.BodyWriter()); err != nil {
		h.logger.Error("写出指标失败", "error", err)
		c.SetStatusCode(consts.StatusInternalServerError)
	}
}

// Chat 一轮对话
func (h *Handler) Chat(ctx context.Context, c *app.RequestContext) {
	if h.chat == nil {
		unavailable(c, "對話服務")
		return
	}
	var req chat.Request
	if len(c.Request.Body()) > 0 {
		if err := c.BindJSON(&req); err != nil {
			fail(c, consts.StatusBadRequest, "請求格式錯誤")
			return
		}
	}

	resp, err := h.chat.Chat(ctx, req)
	if err != nil {
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			fail(c, consts.StatusBadRequest, ve.Message)
			return
		}
		stage := common.Stage("")
		if pe, ok := common.GetPipelineError(err); ok {
			stage = pe.Stage
		}
		h.logger.Error("对话处理失败", "session", req.SessionID, "stage", stage, "error", err)
		c.JSON(consts.StatusInternalServerError, utils.H{
			"ok":        false,
			"error":     chat.ApologyReply,
			"reply":     chat.ApologyReply,
			"engine":    chat.EngineError,
			"sessionId": req.SessionID,
		})
		return
	}
	c.JSON(consts.StatusOK, resp)
}

// UploadedFile 上传结果
type UploadedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Upload 接收 multipart files 字段并落盘到上传目录，由导入或目录监听进入检索库
func (h *Handler) Upload(ctx context.Context, c *app.RequestContext) {
	if h.kb == nil {
		unavailable(c, "知識庫")
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, consts.StatusBadRequest, "請以 multipart/form-data 上傳檔案")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		fail(c, consts.StatusBadRequest, "未收到任何檔案")
		return
	}
	if len(headers) > MaxUploadFiles {
		fail(c, consts.StatusBadRequest, fmt.Sprintf("一次最多上傳 %d 個檔案", MaxUploadFiles))
		return
	}
	for _, fh := range headers {
		if fh.Size > h.maxUploadSize {
			fail(c, consts.StatusRequestEntityTooLarge, fmt.Sprintf("%s 超過 %dMB 限制", fh.Filename, h.maxUploadSize>>20))
			return
		}
	}

	dir := h.kb.UploadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	files := make([]UploadedFile, 0, len(headers))
	for _, fh := range headers {
		name := fmt.Sprintf("%d-%d-%s", time.Now().UnixMilli(), rand.IntN(1e9), filepath.Base(fh.Filename))
		dst := filepath.Join(dir, name)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			h.logger.Error("保存上传文件失败", "file", fh.Filename, "error", err)
			fail(c, consts.StatusInternalServerError, err.Error())
			return
		}
		files = append(files, UploadedFile{Name: fh.Filename, Size: fh.Size, Path: dst, URL: "/uploads/" + name})
	}
	h.logger.Info("文件已上传", "count", len(files))
	c.JSON(consts.StatusOK, utils.H{
		"ok":      true,
		"files":   files,
		"message": fmt.Sprintf("成功上傳 %d 個檔案", len(files)),
	})
}

// Ingest 导入上传目录与学习笔记
func (h *Handler) Ingest(ctx context.Context, c *app.RequestContext) {
	if h.kb == nil {
		unavailable(c, "知識庫")
		return
	}
	uploads, err := h.kb.IngestUploads(ctx)
	if err != nil {
		h.logger.Error("导入上传文件失败", "error", err)
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	var learned retrieval.IngestResult
	if h.learned != nil {
		docs, err := h.learned.LearnedDocs(ctx)
		if err != nil {
			fail(c, consts.StatusInternalServerError, err.Error())
			return
		}
		if learned, err = h.kb.IngestLearned(ctx, docs); err != nil {
			fail(c, consts.StatusInternalServerError, err.Error())
			return
		}
	}
	c.JSON(consts.StatusOK, utils.H{"ok": true, "uploads": uploads, "learned": learned})
}

// Stats 检索库统计
func (h *Handler) Stats(ctx context.Context, c *app.RequestContext) {
	if h.kb == nil {
		unavailable(c, "知識庫")
		return
	}
	st, err := h.kb.Stats(ctx)
	if err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(consts.StatusOK, utils.H{"ok": true, "stats": st})
}

// ListLearned 列出学习笔记（新的在前）
func (h *Handler) ListLearned(ctx context.Context, c *app.RequestContext) {
	if h.learned == nil {
		unavailable(c, "自動學習")
		return
	}
	notes, err := h.learned.ListLearned(ctx)
	if err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	if notes == nil {
		notes = []learning.Note{}
	}
	c.JSON(consts.StatusOK, utils.H{"ok": true, "count": len(notes), "notes": notes})
}

// ResetSession 删除指定会话
func (h *Handler) ResetSession(ctx context.Context, c *app.RequestContext) {
	if h.sessions == nil {
		unavailable(c, "會話管理")
		return
	}
	id := c.Param("id")
	if id == "" {
		fail(c, consts.StatusBadRequest, "缺少 session id")
		return
	}
	if err := h.sessions.Reset(ctx, id); err != nil {
		fail(c, consts.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(consts.StatusOK, utils.H{"ok": true, "sessionId": id})
}
