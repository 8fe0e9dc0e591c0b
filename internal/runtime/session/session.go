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
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxMessages 单个会话保留的消息上限
const DefaultMaxMessages = 80

// Session 单个用户会话：对话历史与槽位状态
type Session struct {
	ID        string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Messages        []*Message     `json:"messages"`
	IntentState     *IntentState   `json:"intentState"`
	CorrectionCount int            `json:"correctionCount"`
	Metadata        map[string]any `json:"metadata,omitempty"`

	mu sync.RWMutex
}

// New 创建新 Session，id 为空时生成 uuid
func New(id string) *Session {
	now := time.Now()
	if id == "" {
		id = uuid.New().String()
	}
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]any),
	}
}

// AddMessage 追加一条对话消息，超过 max 时丢弃最旧的
func (s *Session) AddMessage(role, content string, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
	s.Messages = append(s.Messages, &Message{Role: role, Content: content, Timestamp: s.UpdatedAt})
	s.trim(max)
}

func (s *Session) trim(max int) {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	if n := len(s.Messages); n > max {
		s.Messages = append([]*Message(nil), s.Messages[n-max:]...)
	}
}

// CopyMessages 返回 Messages 的副本
func (s *Session) CopyMessages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Messages) == 0 {
		return nil
	}
	out := make([]*Message, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = &Message{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}
	return out
}

// History 最近 n 条消息
func (s *Session) History(n int) []*Message {
	all := s.CopyMessages()
	if n > 0 && len(all) > n {
		return all[len(all)-n:]
	}
	return all
}

// State 当前槽位状态副本，无则返回 nil
func (s *Session) State() *IntentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.IntentState == nil {
		return nil
	}
	st := *s.IntentState
	return &st
}

// Corrections 当前纠错计数
func (s *Session) Corrections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CorrectionCount
}
