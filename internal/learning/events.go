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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event 每轮对话追加一行的学习事件
type Event struct {
	Session     string    `json:"session"`
	Intent      string    `json:"intent"`
	FinalEngine string    `json:"final_engine"`
	Escalated   bool      `json:"escalated"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventLog JSONL 追加日志
type EventLog struct {
	mu   sync.Mutex
	path string
}

// NewEventLog 创建日志；path 为空时 Append 为空操作
func NewEventLog(path string) (*EventLog, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("创建学习日志目录失败: %w", err)
		}
	}
	return &EventLog{path: path}, nil
}

// Path 日志路径
func (l *EventLog) Path() string { return l.path }

// Append 追加一行
func (l *EventLog) Append(ev Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadAll 读取全部事件；无法解析的行跳过
func (l *EventLog) ReadAll() ([]Event, error) {
	if l == nil || l.path == "" {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev Event
		if json.Unmarshal(sc.Bytes(), &ev) == nil {
			events = append(events, ev)
		}
	}
	return events, sc.Err()
}
