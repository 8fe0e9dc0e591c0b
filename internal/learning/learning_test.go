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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/internal/intent"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

const goodAnswer = "選擇香水可以從三個方向著手：\n1. 先確認喜歡的香調，例如花香或木質。\n2. 依場合挑選濃度，上班建議淡香水。\n3. 試香後等待半小時再決定。"

func escalatedTurn(q string) Turn {
	return Turn{
		SessionID: "s1",
		Question:  q,
		Answer:    goodAnswer,
		Engine:    EngineEscalation,
		Source:    "l2:escalation",
		Label:     intent.Label(q),
		Escalated: true,
	}
}

func TestShouldPersist(t *testing.T) {
	tests := []struct {
		name string
		turn Turn
		want bool
	}{
		{"escalated", escalatedTurn("如何挑選適合自己的香水呢"), true},
		{"primary engine", Turn{Question: "如何挑選適合自己的香水呢", Engine: "primary-model"}, false},
		{"realtime keyword", escalatedTurn("今天適合噴什麼香水比較好"), false},
		{"weather intent", Turn{Question: "台北市區域的概況如何呢", Engine: EngineEscalation, Intent: intent.Weather}, false},
		{"too short", escalatedTurn("香水？"), false},
		{"pii", escalatedTurn("我的手機號碼可以留給香水店嗎"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldPersist(tt.turn); got != tt.want {
				t.Errorf("ShouldPersist() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	v := Validate("如何挑選香水", goodAnswer, "l2:escalation+mcp")
	assert.True(t, v.OK)
	assert.Empty(t, v.Reasons)

	v = Validate("香", "可能也許不一定", "l1")
	assert.False(t, v.OK)
	// 来源、问题过短、答案过短、不确定措辞、缺乏结构
	assert.Len(t, v.Reasons, 5)
	assert.Contains(t, v.Reasons[3], "可能、也許、不一定")
}

func TestBuildNote(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))
	a := BuildNote("  如何挑選   香水 ", goodAnswer, nil, now)
	b := BuildNote("如何挑選 香水", "另一個答案", []string{"perfume"}, now)

	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, a.ID, 40)
	assert.Equal(t, "如何挑選 香水", a.Question)
	assert.Equal(t, []string{}, a.Tags)
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
	assert.True(t, strings.HasPrefix(a.Content, "【使用者問題】如何挑選 香水\n【最佳回答】"))

	doc := a.Doc()
	assert.Equal(t, a.ID, doc.ID)
	assert.Equal(t, a.Content, doc.Content)
}

func TestFileStore_WriteOnce(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "learned"))
	require.NoError(t, err)

	old := BuildNote("第一個問題內容", goodAnswer, nil, time.Unix(100, 0))
	skipped, err := s.Put(ctx, old)
	require.NoError(t, err)
	assert.False(t, skipped)

	dup := old
	dup.Answer = "被覆寫"
	skipped, err = s.Put(ctx, dup)
	require.NoError(t, err)
	assert.True(t, skipped)

	newer := BuildNote("第二個問題內容", goodAnswer, nil, time.Unix(200, 0))
	_, err = s.Put(ctx, newer)
	require.NoError(t, err)

	// 损坏文件应被跳过
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{"), 0o644))

	notes, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, newer.ID, notes[0].ID)
	assert.Equal(t, goodAnswer, notes[1].Answer)
}

func TestFileStore_RejectsBadID(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Put(context.Background(), Note{ID: "../escape"})
	assert.Error(t, err)
}

func TestEventLog_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	el, err := NewEventLog(path)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, el.Append(Event{Session: "s", Intent: "perfume", FinalEngine: EngineEscalation, Escalated: true, Timestamp: ts}))
	}
	require.NoError(t, el.Append(Event{Session: "s", Intent: "mood", FinalEngine: "primary-model", Timestamp: ts}))

	events, err := el.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "primary-model", events[3].FinalEngine)

	l := NewIntentLearner(3)
	l.Replay(events)
	assert.True(t, l.ShouldForce("perfume"))
	assert.False(t, l.ShouldForce("mood"))
	assert.Equal(t, map[string]int{"perfume": 3}, l.Counts())
}

func TestEventLog_EmptyPath(t *testing.T) {
	el, err := NewEventLog("")
	require.NoError(t, err)
	assert.NoError(t, el.Append(Event{Session: "s"}))
	events, err := el.ReadAll()
	assert.NoError(t, err)
	assert.Nil(t, events)
}

func TestIntentLearner(t *testing.T) {
	l := NewIntentLearner(0)
	for i := 0; i < DefaultForceThreshold-1; i++ {
		l.Record("perfume", true)
	}
	l.Record("perfume", false)
	l.Record("", true)
	assert.False(t, l.ShouldForce("perfume"))
	l.Record("perfume", true)
	assert.True(t, l.ShouldForce("perfume"))
	assert.False(t, l.ShouldForce(""))

	var nilLearner *IntentLearner
	assert.False(t, nilLearner.ShouldForce("perfume"))
}

func TestLoop_Observe(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "learned"))
	require.NoError(t, err)
	events, err := NewEventLog(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	learner := NewIntentLearner(2)

	loop := NewLoop(store, events, learner, log.Nop())
	loop.SetClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) })

	turn := escalatedTurn("如何挑選適合自己的香水呢")
	out, err := loop.Observe(ctx, turn)
	require.NoError(t, err)
	assert.Equal(t, OutcomePersisted, out)

	out, err = loop.Observe(ctx, turn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out)
	assert.True(t, loop.Learner().ShouldForce(turn.Label))

	bad := turn
	bad.Question = "香水保存方式有哪些"
	bad.Answer = "太短"
	out, err = loop.Observe(ctx, bad)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, out)

	primary := turn
	primary.Engine = "primary-model"
	primary.Escalated = false
	out, err = loop.Observe(ctx, primary)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGated, out)

	logged, err := events.ReadAll()
	require.NoError(t, err)
	assert.Len(t, logged, 4)

	docs, err := loop.LearnedDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{turn.Label}, docs[0].Tags)
}

func TestLoop_NilStore(t *testing.T) {
	loop := NewLoop(nil, nil, nil, nil)
	out, err := loop.Observe(context.Background(), escalatedTurn("如何挑選適合自己的香水呢"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeGated, out)
	notes, err := loop.ListLearned(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, notes)
}
