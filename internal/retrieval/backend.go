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

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend 片段集合持久化
type Backend interface {
	Load(ctx context.Context) ([]*Chunk, error)
	Save(ctx context.Context, chunks []*Chunk) error
}

// storeFile 磁盘格式 {"chunks":[...]}
type storeFile struct {
	Chunks []*Chunk `json:"chunks"`
}

// FileBackend 单个 JSON 文件，写入走临时文件 + rename
type FileBackend struct {
	path string
}

// NewFileBackend 创建文件后端
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path 返回存储文件路径
func (b *FileBackend) Path() string { return b.path }

// Load 读取片段；文件不存在、格式错误或缺少 chunks 时返回空集合
func (b *FileBackend) Load(ctx context.Context) ([]*Chunk, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil
	}
	return f.Chunks, nil
}

// Save 原子写入
func (b *FileBackend) Save(ctx context.Context, chunks []*Chunk) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("创建知识库目录失败: %w", err)
	}
	if chunks == nil {
		chunks = []*Chunk{}
	}
	data, err := json.MarshalIndent(storeFile{Chunks: chunks}, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化知识库失败: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入知识库失败: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("保存知识库失败: %w", err)
	}
	return nil
}

// MemoryBackend 内存后端，测试与无盘部署使用
type MemoryBackend struct {
	mu     sync.Mutex
	chunks []*Chunk
}

// NewMemoryBackend 创建内存后端
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(ctx context.Context) ([]*Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out, nil
}

func (b *MemoryBackend) Save(ctx context.Context, chunks []*Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = make([]*Chunk, len(chunks))
	copy(b.chunks, chunks)
	return nil
}
