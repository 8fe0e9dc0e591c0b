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
	"time"

	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/pkg/log"
	"github.com/annie25726/perfume-assistant/pkg/metrics"
)

// Outcome Observe 的结果
type Outcome string

const (
	OutcomeGated     Outcome = "gated"
	OutcomeRejected  Outcome = "rejected"
	OutcomePersisted Outcome = "persisted"
	OutcomeSkipped   Outcome = "skipped"
)

// Loop 学习闭环：事件日志、意图计数、门槛 → 校验 → 落地
type Loop struct {
	store   NoteStore
	events  *EventLog
	learner *IntentLearner
	now     func() time.Time
	logger  *log.Logger
}

// NewLoop events、learner 可为 nil
func NewLoop(store NoteStore, events *EventLog, learner *IntentLearner, logger *log.Logger) *Loop {
	return &Loop{
		store:   store,
		events:  events,
		learner: learner,
		now:     time.Now,
		logger:  logger.Component("learning"),
	}
}

// SetClock 测试用
func (l *Loop) SetClock(now func() time.Time) { l.now = now }

// Learner 意图计数器
func (l *Loop) Learner() *IntentLearner { return l.learner }

// Observe 记录事件并按门槛决定是否落地笔记
func (l *Loop) Observe(ctx context.Context, t Turn) (Outcome, error) {
	if err := l.events.Append(Event{
		Session:     t.SessionID,
		Intent:      t.Label,
		FinalEngine: t.Engine,
		Escalated:   t.Escalated,
		Timestamp:   l.now().UTC(),
	}); err != nil {
		l.logger.Warn("写入学习事件失败", "error", err)
	}
	if l.learner != nil {
		l.learner.Record(t.Label, t.Escalated)
	}

	outcome, err := l.persist(ctx, t)
	metrics.LearnedNotesTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (l *Loop) persist(ctx context.Context, t Turn) (Outcome, error) {
	if l.store == nil || !ShouldPersist(t) {
		return OutcomeGated, nil
	}
	if v := Validate(t.Question, t.Answer, t.Source); !v.OK {
		l.logger.Info("学习笔记未通过校验", "reasons", v.Reasons)
		return OutcomeRejected, nil
	}

	var tags []string
	if t.Label != "" {
		tags = []string{t.Label}
	}
	note := BuildNote(t.Question, t.Answer, tags, l.now())
	skipped, err := l.store.Put(ctx, note)
	if err != nil {
		return OutcomeRejected, err
	}
	if skipped {
		return OutcomeSkipped, nil
	}
	l.logger.Info("已落地学习笔记", "id", note.ID)
	return OutcomePersisted, nil
}

// ListLearned 新的在前
func (l *Loop) ListLearned(ctx context.Context) ([]Note, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.List(ctx)
}

// LearnedDocs 供检索库导入
func (l *Loop) LearnedDocs(ctx context.Context) ([]retrieval.LearnedDoc, error) {
	notes, err := l.ListLearned(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]retrieval.LearnedDoc, 0, len(notes))
	for _, n := range notes {
		docs = append(docs, n.Doc())
	}
	return docs, nil
}

// ShouldForce 该意图是否已达到直接升级的门槛
func (l *Loop) ShouldForce(label string) bool {
	return l.learner.ShouldForce(label)
}
