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

// Package retrieval 轻量关键字知识库：按命中密度打分，学习笔记优先。
package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/annie25726/perfume-assistant/pkg/log"
)

// DefaultTopK 默认返回条数
const DefaultTopK = 4

const (
	minDensityLen = 80
	maxDensityLen = 800
	scoreScale    = 25
	learnedBoost  = 1.1
)

var (
	spaceRe         = regexp.MustCompile(`\s+`)
	trailingPunctRe = regexp.MustCompile(`[！？!?。．…]+$`)
)

// Normalize 去首尾空白、折叠空白、去掉结尾标点
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return trailingPunctRe.ReplaceAllString(s, "")
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Store 知识库
type Store struct {
	mu        sync.Mutex
	backend   Backend
	uploadDir string
	logger    *log.Logger
	now       func() time.Time
}

// Option Store 选项
type Option func(*Store)

// WithUploadDir 设置上传目录
func WithUploadDir(dir string) Option {
	return func(s *Store) { s.uploadDir = dir }
}

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.Component("retrieval") }
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore 创建知识库
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  log.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UploadDir 返回上传目录
func (s *Store) UploadDir() string { return s.uploadDir }

// tokenize 空白分词 ∪ 单字，去重，保持首次出现顺序
func tokenize(q string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, w := range strings.Fields(q) {
		add(w)
	}
	for _, r := range q {
		if unicode.IsSpace(r) {
			continue
		}
		add(string(r))
	}
	return out
}

func scoreChunk(c *Chunk, tokens []string) (score, raw float64) {
	hits := 0
	for _, tok := range tokens {
		hits += strings.Count(c.Text, tok)
	}
	n := len([]rune(c.Text))
	if n < minDensityLen {
		n = minDensityLen
	}
	if n > maxDensityLen {
		n = maxDensityLen
	}
	raw = float64(hits) / float64(n)
	score = raw * scoreScale
	if score > 1 {
		score = 1
	}
	if c.Source == SourceLearned {
		score *= learnedBoost
		if score > 1 {
			score = 1
		}
	}
	return score, raw
}

// Search 检索，topK <= 0 时使用默认值
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	q := Normalize(query)
	if q == "" {
		return nil, nil
	}

	s.mu.Lock()
	chunks, err := s.backend.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	tokens := tokenize(q)
	hits := make([]Hit, 0, len(chunks))
	for _, c := range chunks {
		score, raw := scoreChunk(c, tokens)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: c.ID, Text: c.Text, Source: c.Source, Score: score, RawScore: raw})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// mutate 加锁读-改-写；fn 返回 false 时不落盘
func (s *Store) mutate(ctx context.Context, fn func(chunks []*Chunk, ids map[string]struct{}) ([]*Chunk, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		ids[c.ID] = struct{}{}
	}
	out, changed := fn(chunks, ids)
	if !changed {
		return nil
	}
	return s.backend.Save(ctx, out)
}

// AddChunk 运行时追加片段，内容相同则跳过
func (s *Store) AddChunk(ctx context.Context, text, source string, tags []string) (bool, error) {
	clean := Normalize(text)
	if clean == "" {
		return false, nil
	}
	if source == "" {
		source = SourceLearned
	}
	id := sha1Hex(source + clean)
	added := false
	err := s.mutate(ctx, func(chunks []*Chunk, ids map[string]struct{}) ([]*Chunk, bool) {
		if _, ok := ids[id]; ok {
			return chunks, false
		}
		added = true
		return append(chunks, &Chunk{
			ID:        id,
			Source:    source,
			Origin:    OriginRuntime,
			Text:      clean,
			Tags:      tags,
			CreatedAt: s.now(),
		}), true
	})
	return added, err
}

// IngestUploads 扫描上传目录的 .txt/.md/.pdf 文件
func (s *Store) IngestUploads(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	if s.uploadDir == "" {
		return res, nil
	}
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("读取上传目录失败: %w", err)
	}

	type doc struct{ name, text string }
	var docs []doc
	for _, e := range entries {
		if e.IsDir() || !isIngestible(e.Name()) {
			continue
		}
		res.Scanned++
		text, err := readUpload(filepath.Join(s.uploadDir, e.Name()))
		if err != nil {
			s.logger.Warn("读取上传文件失败", "file", e.Name(), "error", err)
			continue
		}
		if text = Normalize(text); text != "" {
			docs = append(docs, doc{name: e.Name(), text: text})
		}
	}

	err = s.mutate(ctx, func(chunks []*Chunk, ids map[string]struct{}) ([]*Chunk, bool) {
		for _, d := range docs {
			id := sha1Hex(d.name + d.text)
			if _, ok := ids[id]; ok {
				continue
			}
			ids[id] = struct{}{}
			chunks = append(chunks, &Chunk{
				ID:        id,
				Source:    d.name,
				Origin:    OriginUpload,
				Text:      d.text,
				CreatedAt: s.now(),
			})
			res.Added++
		}
		return chunks, res.Added > 0
	})
	if err == nil {
		s.logger.Info("上传文件已导入", "scanned", res.Scanned, "added", res.Added)
	}
	return res, err
}

// IngestLearned 导入学习笔记
func (s *Store) IngestLearned(ctx context.Context, notes []LearnedDoc) (IngestResult, error) {
	res := IngestResult{Scanned: len(notes)}
	err := s.mutate(ctx, func(chunks []*Chunk, ids map[string]struct{}) ([]*Chunk, bool) {
		for _, n := range notes {
			text := Normalize(n.Content)
			if text == "" {
				continue
			}
			id := n.ID
			if id == "" {
				id = sha1Hex(text)
			}
			if _, ok := ids[id]; ok {
				continue
			}
			ids[id] = struct{}{}
			created := n.CreatedAt
			if created.IsZero() {
				created = s.now()
			}
			chunks = append(chunks, &Chunk{
				ID:        id,
				Source:    SourceLearned,
				Origin:    OriginLearned,
				Question:  n.Question,
				Text:      text,
				Tags:      n.Tags,
				CreatedAt: created,
			})
			res.Added++
		}
		return chunks, res.Added > 0
	})
	return res, err
}

// Stats 片段总数与学习片段数
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	chunks, err := s.backend.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Documents: len(chunks)}
	for _, c := range chunks {
		if c.Source == SourceLearned {
			st.Learned++
		}
	}
	return st, nil
}
