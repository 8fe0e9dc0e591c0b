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

package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// NoteStore 学习笔记存储；Put 对已存在的 id 不覆盖并返回 skipped=true
type NoteStore interface {
	Put(ctx context.Context, n Note) (skipped bool, err error)
	// List 新的在前
	List(ctx context.Context) ([]Note, error)
}

var noteIDRe = regexp.MustCompile(`^[0-9a-f]{40}$`)

// FileStore 每条笔记一个 JSON 文件
type FileStore struct {
	dir string
}

// NewFileStore 创建目录并返回 FileStore
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建学习目录失败: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir 存储目录
func (s *FileStore) Dir() string { return s.dir }

// Put 以 O_EXCL 创建文件，已存在即跳过
func (s *FileStore) Put(_ context.Context, n Note) (bool, error) {
	if !noteIDRe.MatchString(n.ID) {
		return false, fmt.Errorf("%w: note id %q", perrors.ErrInvalidArg, n.ID)
	}
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return false, err
	}
	path := filepath.Join(s.dir, n.ID+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return false, err
	}
	return false, f.Close()
}

// List 读取全部笔记；损坏的文件跳过
func (s *FileStore) List(_ context.Context) ([]Note, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var notes []Note
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var n Note
		if json.Unmarshal(data, &n) != nil || n.ID == "" {
			continue
		}
		notes = append(notes, n)
	}
	sortNewestFirst(notes)
	return notes, nil
}

func sortNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}

// PgStore PostgreSQL 实现，使用 learned_notes 表
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 连接数据库并确保表存在
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 PostgreSQL 失败: %w", err)
	}
	s := &PgStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPgStoreWithPool 复用已有连接池
func NewPgStoreWithPool(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema 建表
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS learned_notes (
  id TEXT PRIMARY KEY,
  question TEXT NOT NULL,
  answer TEXT NOT NULL,
  content TEXT NOT NULL,
  tags JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

// Put 实现 NoteStore；冲突时不更新
func (s *PgStore) Put(ctx context.Context, n Note) (bool, error) {
	tags, err := json.Marshal(n.Tags)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO learned_notes (id, question, answer, content, tags, created_at)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Question, n.Answer, n.Content, tags, n.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

// List 实现 NoteStore
func (s *PgStore) List(ctx context.Context) ([]Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question, answer, content, tags, created_at FROM learned_notes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var tags []byte
		if err := rows.Scan(&n.ID, &n.Question, &n.Answer, &n.Content, &tags, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &n.Tags)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Close 关闭连接池
func (s *PgStore) Close() {
	s.pool.Close()
}
