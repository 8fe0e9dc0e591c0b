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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/annie25726/perfume-assistant/internal/storage/cache"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// SessionStore 存储抽象；Get 未找到时返回 nil, nil
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore 内存实现（map + mutex）
type MemoryStore struct {
	mu   sync.RWMutex
	sess map[string]*Session
}

// NewMemoryStore 创建内存 Session 存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sess: make(map[string]*Session)}
}

// Get 实现 SessionStore
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess[id], nil
}

// Put 实现 SessionStore
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess[s.ID] = s
	return nil
}

// Delete 实现 SessionStore
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, id)
	return nil
}

var safeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FileStore 每个会话一个 JSON 文件：<dir>/<id>.json
type FileStore struct {
	dir string
}

// NewFileStore 创建文件存储
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建会话目录失败: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) fileOf(id string) (string, error) {
	if !safeIDRe.MatchString(id) {
		return "", perrors.Wrapf(perrors.ErrInvalidArg, "非法会话 id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

// Get 读取会话；文件损坏时视为不存在
func (f *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	path, err := f.fileOf(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取会话失败: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil
	}
	if s.ID == "" {
		s.ID = id
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	return &s, nil
}

// Put 原子写入
func (f *FileStore) Put(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	path, err := f.fileOf(s.ID)
	if err != nil {
		return err
	}
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("写入会话失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("保存会话失败: %w", err)
	}
	return nil
}

// Delete 删除会话文件
func (f *FileStore) Delete(ctx context.Context, id string) error {
	path, err := f.fileOf(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CacheStore 会话存于 cache.Store（通常为 Redis）
type CacheStore struct {
	cache cache.Store
	ttl   time.Duration
}

// NewCacheStore ttl <= 0 表示不过期
func NewCacheStore(c cache.Store, ttl time.Duration) *CacheStore {
	return &CacheStore{cache: c, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

// Get 实现 SessionStore
func (c *CacheStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := c.cache.Get(ctx, sessionKey(id), &s)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	return &s, nil
}

// Put 实现 SessionStore
func (c *CacheStore) Put(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.cache.Set(ctx, sessionKey(s.ID), s, c.ttl)
}

// Delete 实现 SessionStore
func (c *CacheStore) Delete(ctx context.Context, id string) error {
	return c.cache.Delete(ctx, sessionKey(id))
}
