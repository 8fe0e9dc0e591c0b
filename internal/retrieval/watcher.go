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
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/annie25726/perfume-assistant/pkg/log"
)

// UploadWatcher 监听上传目录，文件写入后自动导入
type UploadWatcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	logger   *log.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewUploadWatcher 创建监听器
func NewUploadWatcher(store *Store, logger *log.Logger) (*UploadWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &UploadWatcher{
		store:    store,
		watcher:  w,
		logger:   logger.Component("upload_watcher"),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start 非阻塞启动，ctx 取消或 Stop 时退出
func (w *UploadWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	dir := w.store.UploadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.running = true
	go w.run(ctx)
	w.logger.Info("开始监听上传目录", "dir", dir)
	return nil
}

// Stop 停止监听并等待退出
func (w *UploadWatcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()
	_ = w.watcher.Close()
	if running {
		<-w.done
	}
}

func (w *UploadWatcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isIngestible(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// 连续写入合并为一次导入
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("上传目录监听错误", "error", err)
		case <-fire:
			fire = nil
			if _, err := w.store.IngestUploads(ctx); err != nil {
				w.logger.Error("自动导入失败", "error", err)
			}
		}
	}
}
