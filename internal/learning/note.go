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
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/annie25726/perfume-assistant/internal/intent"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
)

// EngineEscalation 只有升级模型的回答会被学习
const EngineEscalation = "escalation-model"

// SourcePrefix 可回存知识的来源前缀
const SourcePrefix = "l2:"

var (
	realtimeKeywords = []string{"天氣", "下雨", "降雨", "溫度", "氣象", "今天", "明天", "後天", "現在"}
	hedgeMarkers     = []string{"可能", "也許", "不一定", "未必", "我猜", "推測", "大概", "應該"}

	piiRe       = regexp.MustCompile(`(?i)電話|手機|地址|身分證|信用卡|帳號|密碼|OTP|驗證碼`)
	structureRe = regexp.MustCompile(`\n|\d+\.|-|•|：|。`)
)

// Turn 一轮对话的学习输入
type Turn struct {
	SessionID string
	Question  string
	Answer    string
	Engine    string
	Intent    intent.Intent
	Label     string // intent.Label 的结果
	Source    string // 如 l2:escalation、l2:escalation+mcp
	Escalated bool
}

// Note 学习笔记；ID 为规范化问题的 sha1，写入后不再修改
type Note struct {
	ID        string    `json:"id"`
	Question  string    `json:"q"`
	Answer    string    `json:"a"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
}

// Doc 转成检索库导入格式
func (n Note) Doc() retrieval.LearnedDoc {
	return retrieval.LearnedDoc{
		ID:        n.ID,
		Question:  n.Question,
		Content:   n.Content,
		Tags:      n.Tags,
		CreatedAt: n.CreatedAt,
	}
}

// NormalizeQuestion 与检索库相同的规范化
func NormalizeQuestion(q string) string {
	return retrieval.Normalize(q)
}

// ShouldPersist 学习门槛：仅升级回答，排除即时信息、天气意图、过短问题与疑似个资
func ShouldPersist(t Turn) bool {
	if t.Engine != EngineEscalation {
		return false
	}
	for _, k := range realtimeKeywords {
		if strings.Contains(t.Question, k) {
			return false
		}
	}
	if t.Intent == intent.Weather {
		return false
	}
	if len([]rune(NormalizeQuestion(t.Question))) < 6 {
		return false
	}
	return !piiRe.MatchString(t.Question)
}

// Validation 可信度检查结果
type Validation struct {
	OK      bool     `json:"ok"`
	Reasons []string `json:"reasons,omitempty"`
}

// Validate 来源、长度、不确定措辞与结构检查；收集全部原因
func Validate(question, answer, source string) Validation {
	var reasons []string
	q := strings.TrimSpace(question)
	a := strings.TrimSpace(answer)

	if !strings.HasPrefix(source, SourcePrefix) {
		reasons = append(reasons, "來源不是 L2（僅允許 L2 產生的新知識回存）")
	}
	if len([]rune(q)) < 2 {
		reasons = append(reasons, "問題過短")
	}
	if len([]rune(a)) < 40 {
		reasons = append(reasons, "答案過短（資訊不足）")
	}

	var hedges []string
	for _, h := range hedgeMarkers {
		if strings.Contains(a, h) {
			hedges = append(hedges, h)
		}
	}
	if len(hedges) >= 3 {
		reasons = append(reasons, fmt.Sprintf("不確定措辭過多（%s）", strings.Join(hedges, "、")))
	}

	if !structureRe.MatchString(a) {
		reasons = append(reasons, "缺乏結構（不利於回存成可檢索知識）")
	}
	return Validation{OK: len(reasons) == 0, Reasons: reasons}
}

// BuildNote 组装可重用的笔记正文
func BuildNote(question, answer string, tags []string, now time.Time) Note {
	q := NormalizeQuestion(question)
	a := strings.TrimSpace(answer)
	sum := sha1.Sum([]byte(q))
	if tags == nil {
		tags = []string{}
	}
	return Note{
		ID:       hex.EncodeToString(sum[:]),
		Question: q,
		Answer:   a,
		Content: strings.Join([]string{
			"【使用者問題】" + q,
			"【最佳回答】" + a,
			"【可重用結論】請把上面的回答視為可重用的知識規則/指南，下次遇到同類問題優先引用。",
		}, "\n"),
		Tags:      tags,
		CreatedAt: now.UTC(),
	}
}
