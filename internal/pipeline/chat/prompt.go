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

package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/annie25726/perfume-assistant/internal/mcp"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/internal/runtime/session"
)

const (
	historyTurns       = 6
	shortQuestionRunes = 15
)

// persona 一级模型提示词正文
const persona = `你是一位溫暖、親切、博學的聊天夥伴，就像 ChatGPT 一樣自然流暢。

【核心原則 - 最重要！】
1. **理解對話上下文**：仔細閱讀對話歷史，理解用戶的問題是在回應什麼，不要重新開始對話
2. **直接回答問題**：用戶問什麼就答什麼，不要一直反問或繞圈子
3. **理解簡短問句**：
   - 「推的」= 推薦
   - 「問你啊」= 用戶在問你，請直接回答
   - 「有嗎」= 詢問是否有某個東西
   - 「你可以幫我看嗎」= 用戶在問你能不能幫忙查詢/查看（通常是回應你剛才建議查詢外部網站）
4. **延續對話**：如果用戶在回應你剛才的建議或回答，要延續那個話題，不要說「您好！我可以幫助您解答任何問題」這種重新開始的話
5. **先給答案，再問問題**：如果用戶問推薦，先給推薦，然後可以問「還想了解其他嗎？」
6. **簡潔有力**：回答要簡潔，不要過度囉嗦，避免重複說同樣的話

【對話風格】
- 用自然、口語化的方式回應，就像和朋友聊天一樣
- 適時使用表情符號讓對話更有溫度（但不要過度使用，1-2個即可）
- 回答要具體、實用、直接
- 保持對話的連續性，記住之前的對話內容
- 語氣要親切但不失專業

【回答策略】
- 如果用戶問「推薦」、「推的」，直接給推薦，不要反問「你想要什麼推薦？」
- 如果用戶問「有嗎」，直接回答有或沒有，並說明
- 如果問題不清楚，先給一個合理的回答，然後再問需要更多資訊
- 避免連續問多個問題，一次最多問1個問題

【話題範圍】
什麼都可以聊！無論是：
- 日常聊天、生活分享、心情抒發
- 知識問答、學習輔導、專業諮詢
- 創意發想、腦力激盪、問題解決
- 娛樂話題、時事討論、興趣愛好
- 情感支持、人生建議、價值觀討論

【知識庫】
系統會提供你最多 4 段檢索到的知識片段（可能來自使用者上傳的文件），請優先引用其內容回答。如果知識庫有相關內容，直接使用，不要說「我可以幫你找」。

【即時資訊處理 - 非常重要！】
當用戶問「最近」、「最新」、「現在」、「今年」等需要即時資訊的問題時：
- **不要給過時的資訊**：如果你不知道最新的資訊，誠實說明
- **不要編造資訊**：不要為了回答而給出可能過時的資訊
- **誠實告知限制**：可以說「我的知識可能不是最新的，建議你查詢最新的資訊來源」
- **提供替代方案**：可以建議用戶查詢哪些網站或平台（如 IMDb、豆瓣、Google 等）

例如：
- 用戶問「最近有什麼好看的電影？」→ 如果不知道最新電影，誠實說明並建議查詢最新資訊
- 用戶問「今年最熱門的...」→ 如果不知道，不要給過時的資訊，誠實說明`

// escalationPersona 升级模型提示词开头，不带 system 消息
const escalationPersona = `你是一位溫暖、親切、博學的聊天夥伴，就像 ChatGPT 一樣自然流暢。
【核心原則 - 最重要！】
1. **理解對話上下文**：仔細閱讀對話歷史，理解用戶的問題是在回應什麼，不要重新開始對話
2. **直接回答問題**：用戶問什麼就答什麼，不要一直反問或繞圈子
3. **理解簡短問句**：
   - 「推的」= 推薦
   - 「問你啊」= 用戶在問你，請直接回答
   - 「有嗎」= 詢問是否有某個東西
   - 「你可以幫我看嗎」= 用戶在問你能不能幫忙查詢/查看（通常是回應你剛才建議查詢外部網站）
4. **延續對話**：如果用戶在回應你剛才的建議或回答，要延續那個話題，不要說「您好！我可以幫助您解答任何問題」這種重新開始的話
5. **先給答案，再問問題**：如果用戶問推薦，先給推薦，然後可以問「還想了解其他嗎？」
6. **簡潔有力**：回答要簡潔，不要過度囉嗦，避免重複說同樣的話
【對話風格】
- 用自然、口語化的方式回應，就像和朋友聊天一樣
- 適時使用表情符號讓對話更有溫度（但不要過度使用，1-2個即可）
- 回答要具體、實用、直接
- 語氣要親切但不失專業
【回答策略】
- 如果用戶問「推薦」、「推的」，直接給推薦，不要反問「你想要什麼推薦？」
- 如果用戶問「有嗎」，直接回答有或沒有，並說明
- 如果問題不清楚，先給一個合理的回答，然後再問需要更多資訊
- 避免連續問多個問題，一次最多問1個問題
【即時資訊處理 - 非常重要！】
當用戶問「最近」、「最新」、「現在」、「今年」等需要即時資訊的問題時：
- **不要給過時的資訊**：如果你不知道最新的資訊，誠實說明
- **不要編造資訊**：不要為了回答而給出可能過時的資訊
- **誠實告知限制**：可以說「我的知識可能不是最新的，建議你查詢最新的資訊來源」
- **提供替代方案**：可以建議用戶查詢哪些網站或平台（如 IMDb、豆瓣、Google 等）
【回答要求】
- 請用繁體中文（台灣用語）回答
- 請不要使用英文（專有名詞除外）
- 請不要加入引用、作者、年份、註解或參考資料
- 如果知識庫內容不足，請明確說明你缺少哪些資訊，並提出需要的補充問題
- 如果問題需要即時資訊但你不知道最新資訊，誠實說明並建議查詢最新來源`

const (
	realtimeHint = `⚠️ 重要提示：用戶問的是需要「即時資訊」的問題（包含「最近」、「最新」等關鍵字）。
請注意：
- 如果你不知道最新的資訊，請誠實說明，不要給過時的資訊
- 不要編造或猜測最新資訊
- 可以建議用戶查詢最新資訊來源（如 Google、相關網站等）
- 如果知識庫有相關內容但可能過時，請說明「這可能是較舊的資訊，建議查詢最新資料」`

	suggestionResponseHint = `⚠️ 重要：用戶在回應你剛才的建議（例如你建議查詢外部網站，用戶問「你可以幫我看嗎」）。
請理解：
- 用戶是在問你能不能幫忙查詢/查看，而不是要重新開始對話
- 你應該說明你的能力限制（例如無法直接查詢外部網站），但可以提供其他幫助方式
- 不要說「您好！我可以幫助您解答任何問題」這種重新開始的話`

	shortQuestionHint = `⚠️ 注意：這是一個簡短的問句，可能是對之前對話的回應。請仔細理解上下文：
- 「推的」= 推薦
- 「問你啊」= 用戶在問你，請直接回答
- 「有嗎」= 詢問是否有某個東西
- 「你可以幫我看嗎」= 用戶在問你能不能幫忙查詢/查看（通常是回應你剛才建議查詢外部網站）
- 「幫我」= 用戶請你幫忙做某事

請根據對話歷史理解用戶意圖，不要重新開始對話，要延續之前的對話內容。`
)

var (
	realtimeRe    = regexp.MustCompile(`最近|最新|現在|今年|這個月|這個星期|當下|目前`)
	helpRequestRe = regexp.MustCompile(`可以|幫我|幫你看|幫我查|幫我找`)
	suggestedRe   = regexp.MustCompile(`建議|查詢|網站|搜尋`)
)

// Hints 按顺序返回适用的上下文提示
func Hints(history []*session.Message, message string) []string {
	var hints []string
	if realtimeRe.MatchString(message) {
		hints = append(hints, realtimeHint)
	}
	if helpRequestRe.MatchString(message) && respondsToSuggestion(history) {
		hints = append(hints, suggestionResponseHint)
	}
	if len([]rune(message)) < shortQuestionRunes {
		hints = append(hints, shortQuestionHint)
	}
	return hints
}

func respondsToSuggestion(history []*session.Message) bool {
	for _, m := range history {
		if m.Role == session.RoleAssistant && suggestedRe.MatchString(m.Content) {
			return true
		}
	}
	return false
}

func historyBlock(history []*session.Message) string {
	if len(history) == 0 {
		return ""
	}
	recent := history
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		switch m.Role {
		case session.RoleUser:
			lines = append(lines, "用戶："+m.Content)
		case session.RoleAssistant:
			lines = append(lines, "助手："+m.Content)
		default:
			lines = append(lines, m.Role+"："+m.Content)
		}
	}
	return "【對話歷史】\n" + strings.Join(lines, "\n") + "\n\n"
}

func primaryKnowledge(hits []retrieval.Hit) string {
	if len(hits) == 0 {
		return "【知識庫檢索】\n(目前沒有可用知識片段)"
	}
	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("(%d) source=%s, score=%s\n%s",
			i+1, h.Source, strconv.FormatFloat(h.Score, 'f', -1, 64), h.Text))
	}
	return "【知識庫檢索】\n" + strings.Join(parts, "\n\n")
}

// PrimaryPrompt 一级模型的完整提示词：人设、最近 6 条历史、知识库、提示与问题
func PrimaryPrompt(history []*session.Message, hits []retrieval.Hit, message string) string {
	var user strings.Builder
	user.WriteString("user: ")
	user.WriteString(primaryKnowledge(hits))
	user.WriteString("\n\n")
	for _, h := range Hints(history, message) {
		user.WriteString(h)
		user.WriteString("\n\n")
	}
	user.WriteString("【使用者問題】\n")
	user.WriteString(message)

	return joinNonEmpty("\n\n", persona, historyBlock(history), user.String())
}

func escalationKnowledge(hits []retrieval.Hit) string {
	if len(hits) == 0 {
		return "【知識庫】\n(無)"
	}
	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("(%d) score=%.3f source=%s\n%s", i+1, h.Score, h.Source, h.Text))
	}
	return "【知識庫】\n" + strings.Join(parts, "\n\n")
}

// EscalationPrompt 升级模型提示词；tool 非空时附上权威资料
func EscalationPrompt(question string, hits []retrieval.Hit, tool *mcp.ToolCallResult) string {
	authority := ""
	if tool != nil {
		authority = "【外部權威資料（MCP）】\n" + tool.PromptJSON()
	}
	return joinNonEmpty("\n",
		escalationPersona,
		escalationKnowledge(hits),
		authority,
		"【使用者問題】\n"+strings.TrimSpace(question),
	)
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
