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

package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/annie25726/perfume-assistant/internal/intent"
)

// BatchTool 多段输入的汇总结果名
const BatchTool = "batch"

// ToolCallResult 一次工具调用的结果；批量调用时 Results 非空
type ToolCallResult struct {
	Tool    string           `json:"tool"`
	Intent  string           `json:"intent,omitempty"`
	Input   string           `json:"input,omitempty"`
	Content string           `json:"content,omitempty"`
	Raw     json.RawMessage  `json:"raw,omitempty"`
	Parsed  map[string]any   `json:"-"`
	Results []ToolCallResult `json:"results,omitempty"`
}

// IsBatch 是否为批量结果
func (r *ToolCallResult) IsBatch() bool { return r != nil && r.Tool == BatchTool }

// PromptJSON 注入升级模型提示词的缩进 JSON
func (r *ToolCallResult) PromptJSON() string {
	type item struct {
		Tool    string `json:"tool"`
		Input   string `json:"input,omitempty"`
		Content any    `json:"content"`
	}
	view := func(x ToolCallResult) item {
		it := item{Tool: x.Tool, Input: x.Input, Content: x.Content}
		if x.Content == "" && len(x.Raw) > 0 {
			it.Content = x.Raw
		}
		return it
	}

	var v any
	if r.IsBatch() {
		items := make([]item, 0, len(r.Results))
		for _, x := range r.Results {
			items = append(items, view(x))
		}
		v = map[string]any{"tool": BatchTool, "results": items}
	} else {
		v = view(*r)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return r.Content
	}
	return string(b)
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// contentText tools/call result.content 数组中的 text 拼接
func contentText(raw json.RawMessage) (string, bool) {
	var r struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if json.Unmarshal(raw, &r) != nil || r.Content == nil {
		return "", false
	}
	texts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	}
	return strings.Join(texts, "\n"), true
}

// ParseContent 依次尝试 content、raw 中的文本候选解析 JSON 对象，最后退回 raw 本身
func ParseContent(content string, raw json.RawMessage) map[string]any {
	var candidates []string
	if content != "" {
		candidates = append(candidates, content)
	}

	var rawObj map[string]any
	if len(raw) > 0 && json.Unmarshal(raw, &rawObj) == nil && rawObj != nil {
		if s, ok := rawObj["content"].(string); ok {
			candidates = append(candidates, s)
		}
		if text, ok := contentText(raw); ok {
			candidates = append(candidates, text)
		}
		switch res := rawObj["result"].(type) {
		case string:
			candidates = append(candidates, res)
		case map[string]any:
			if s, ok := res["content"].(string); ok {
				candidates = append(candidates, s)
			}
			if b, err := json.Marshal(res); err == nil {
				if text, ok := contentText(b); ok {
					candidates = append(candidates, text)
				}
			}
		}
	}

	for _, c := range candidates {
		if obj := parseObject(c); obj != nil {
			return obj
		}
	}
	return rawObj
}

func parseObject(s string) map[string]any {
	var obj map[string]any
	if json.Unmarshal([]byte(s), &obj) == nil && obj != nil {
		return obj
	}
	if m := jsonObjectRe.FindString(s); m != "" {
		if json.Unmarshal([]byte(m), &obj) == nil && obj != nil {
			return obj
		}
	}
	return nil
}

// lookup 按点分路径取嵌套值
func lookup(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func firstOf(obj map[string]any, paths ...string) (any, bool) {
	for _, p := range paths {
		if v, ok := lookup(obj, p); ok {
			return v, true
		}
	}
	return nil, false
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

var balanceTextRe = regexp.MustCompile(`(?i)(?:balance|餘額|剩餘)\s*[:：]?\s*(-?\d+(?:\.\d+)?)`)

func extractBalance(obj map[string]any) (string, bool) {
	if obj == nil {
		return "", false
	}
	if v, ok := firstOf(obj, "balance", "available_balance", "total_balance", "cash_balance",
		"summary.balance", "result.balance", "data.balance", "account_summary.balance"); ok {
		return formatValue(v), true
	}
	if s, ok := obj["result"].(string); ok {
		if v, ok := extractBalance(parseObject(s)); ok {
			return v, true
		}
	}
	if s, ok := obj["content"].(string); ok {
		if m := balanceTextRe.FindStringSubmatch(s); m != nil {
			return m[1], true
		}
		return extractBalance(parseObject(s))
	}
	return "", false
}

// FormatReply 按规范工具意图把结构化结果转成回复；无法格式化时返回空串
func FormatReply(toolIntent string, parsed map[string]any) string {
	if parsed == nil {
		return ""
	}
	if ok, isBool := parsed["success"].(bool); isBool && !ok {
		if e := formatValue(parsed["error"]); e != "" {
			return "操作失敗：" + e
		}
		return "操作失敗，請稍後再試。"
	}

	switch toolIntent {
	case intent.ToolAddTransaction:
		if msg := formatValue(parsed["message"]); msg != "" {
			return msg
		}
		return "已新增交易。"

	case intent.ToolGetBalance:
		reply := "已取得餘額資訊，但尚未回傳餘額數字。"
		if v, ok := extractBalance(parsed); ok {
			reply = "目前餘額 NTD " + v
		}
		if n, ok := parsed["total_transactions"]; ok && n != nil {
			reply += fmt.Sprintf("（共 %s 筆交易）", formatValue(n))
		}
		return reply

	case intent.ToolListTransactions:
		var txs []any
		if v, ok := firstOf(parsed, "transactions", "items", "records",
			"data.transactions", "data.items", "result.transactions", "result.items"); ok {
			txs, _ = v.([]any)
		}
		total := strconv.Itoa(len(txs))
		if v, ok := firstOf(parsed, "pagination.total_count", "data.pagination.total_count",
			"result.pagination.total_count", "total_count", "total"); ok {
			total = formatValue(v)
		}
		shown := txs
		if len(shown) > 5 {
			shown = shown[:5]
		}
		lines := []string{fmt.Sprintf("交易筆數 %s，顯示 %d 筆：", total, len(shown))}
		for _, it := range shown {
			m, _ := it.(map[string]any)
			line := fmt.Sprintf("- %s %s NTD %s %s",
				formatValue(m["date"]), formatValue(m["category"]), formatValue(m["amount"]), formatValue(m["description"]))
			lines = append(lines, strings.TrimSpace(line))
		}
		return strings.Join(lines, "\n")

	case intent.ToolGetMonthlySummary:
		income, _ := firstOf(parsed, "summary.totals.income", "data.summary.totals.income", "total_income")
		expense, _ := firstOf(parsed, "summary.totals.expense", "data.summary.totals.expense", "total_expense")
		net, _ := firstOf(parsed, "summary.totals.net_flow", "data.summary.totals.net_flow", "net_flow")
		return fmt.Sprintf("本月收入 NTD %s，支出 NTD %s，淨流 NTD %s。",
			orUnknown(income), orUnknown(expense), orUnknown(net))

	case intent.ToolGetCategories:
		var cats []any
		if v, ok := firstOf(parsed, "categories.all", "data.categories.all", "categories", "data.categories"); ok {
			cats, _ = v.([]any)
		}
		var names []string
		for _, c := range cats {
			m, _ := c.(map[string]any)
			if n := formatValue(m["name"]); n != "" {
				names = append(names, n)
			} else if id := formatValue(m["id"]); id != "" {
				names = append(names, id)
			}
		}
		if len(names) > 0 {
			return "分類清單：" + strings.Join(names, "、")
		}
	}
	return ""
}

func orUnknown(v any) string {
	if s := formatValue(v); s != "" {
		return s
	}
	return "未知"
}

// Answer 记账结果能否直接作为回复；批量结果逐段带标题
func Answer(r *ToolCallResult) (string, bool) {
	if r == nil {
		return "", false
	}
	if r.IsBatch() {
		var lines []string
		for _, item := range r.Results {
			summary := FormatReply(item.Intent, ParseContent(item.Content, item.Raw))
			if summary == "" {
				summary = "已完成。"
			}
			header := "【" + item.Input + "】"
			if item.Input == "" {
				name := item.Tool
				if name == "" {
					name = "記帳操作"
				}
				header = "【" + name + "】"
			}
			lines = append(lines, header, summary, "")
		}
		out := strings.TrimSpace(strings.Join(lines, "\n"))
		if out == "" {
			out = "已完成多筆記帳操作。"
		}
		return out, true
	}

	// 单次调用有文本时只解析文本，解析不出则原样返回文本
	raw := r.Raw
	if r.Content != "" {
		raw = nil
	}
	if summary := FormatReply(r.Intent, ParseContent(r.Content, raw)); summary != "" {
		return summary, true
	}
	if r.Content != "" {
		return r.Content, true
	}
	return "", false
}

// ReadyAnswer 通用权威服务在结果中直接给出的 readyAnswer
func ReadyAnswer(r *ToolCallResult) (string, bool) {
	if r == nil {
		return "", false
	}
	parsed := r.Parsed
	if parsed == nil {
		parsed = ParseContent(r.Content, r.Raw)
	}
	if s := formatValue(parsed["readyAnswer"]); s != "" {
		return s, true
	}
	return "", false
}
