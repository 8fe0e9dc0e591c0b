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
	"sync"
	"time"
)

// Manager 基于 SessionStore 的会话管理；同一 id 的读改写串行执行
type Manager struct {
	store       SessionStore
	maxMessages int

	mu    sync.Mutex
	locks map[string]*idLock
}

// idLock 引用计数归零时从 locks 中移除
type idLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager 创建 Manager，maxMessages <= 0 时取默认值
func NewManager(store SessionStore, maxMessages int) *Manager {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Manager{store: store, maxMessages: maxMessages, locks: make(map[string]*idLock)}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &idLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// GetOrCreate 若 id 为空则生成新 id；不存在时以该 id 创建
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	s := New(id)
	if id == "" {
		if err := m.store.Put(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	unlock := m.lock(id)
	defer unlock()
	return m.loadOrCreate(ctx, id, true)
}

func (m *Manager) loadOrCreate(ctx context.Context, id string, persist bool) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}
	s = New(id)
	if persist {
		if err := m.store.Put(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get 按 id 读取，不存在返回 nil
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) update(ctx context.Context, id string, fn func(s *Session)) (*Session, error) {
	unlock := m.lock(id)
	defer unlock()
	s, err := m.loadOrCreate(ctx, id, false)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	fn(s)
	s.UpdatedAt = time.Now()
	s.mu.Unlock()
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// IntentState 读取槽位状态
func (m *Manager) IntentState(ctx context.Context, id string) (*IntentState, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil || s == nil {
		return nil, err
	}
	return s.State(), nil
}

// SetIntentState 覆盖槽位状态
func (m *Manager) SetIntentState(ctx context.Context, id string, state *IntentState) error {
	_, err := m.update(ctx, id, func(s *Session) {
		if state == nil {
			s.IntentState = nil
			return
		}
		st := *state
		s.IntentState = &st
	})
	return err
}

// AppendTurns 追加消息并裁剪到上限
func (m *Manager) AppendTurns(ctx context.Context, id string, turns ...Turn) error {
	_, err := m.update(ctx, id, func(s *Session) {
		now := time.Now()
		for _, t := range turns {
			s.Messages = append(s.Messages, &Message{Role: t.Role, Content: t.Content, Timestamp: now})
		}
		s.trim(m.maxMessages)
	})
	return err
}

// RecordCorrection 文本为纠错语气时计数加一，返回当前计数
func (m *Manager) RecordCorrection(ctx context.Context, id, text string) (int, error) {
	if !IsCorrection(text) {
		s, err := m.store.Get(ctx, id)
		if err != nil || s == nil {
			return 0, err
		}
		return s.Corrections(), nil
	}
	s, err := m.update(ctx, id, func(s *Session) { s.CorrectionCount++ })
	if err != nil {
		return 0, err
	}
	return s.CorrectionCount, nil
}

// ResetCorrections 纠错计数清零
func (m *Manager) ResetCorrections(ctx context.Context, id string) error {
	_, err := m.update(ctx, id, func(s *Session) { s.CorrectionCount = 0 })
	return err
}

// Reset 删除会话
func (m *Manager) Reset(ctx context.Context, id string) error {
	unlock := m.lock(id)
	defer unlock()
	return m.store.Delete(ctx, id)
}
