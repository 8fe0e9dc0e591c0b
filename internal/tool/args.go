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

package tool

import (
	"regexp"
	"strings"
	"time"

	"github.com/annie25726/perfume-assistant/internal/intent"
)

var (
	descVerbRe  = regexp.MustCompile(`記帳|新增|記錄|記一筆|支出|收入|花了|花費|付款|消費|買了|進帳|轉帳|匯款|幫我|請幫我`)
	descDateRe  = regexp.MustCompile(`今天|昨天|前天|元|塊`)
	descPunctRe = regexp.MustCompile(`[，,。．！!：:;；]`)
	descSpaceRe = regexp.MustCompile(`\s+`)
)

// Builders 记账工具意图到参数策略
var Builders = map[string]ArgBuilder{
	intent.ToolAddTransaction:    ArgBuilderFunc(addTransactionArgs),
	intent.ToolGetBalance:        ArgBuilderFunc(balanceArgs),
	intent.ToolListTransactions:  ArgBuilderFunc(listTransactionsArgs),
	intent.ToolGetMonthlySummary: ArgBuilderFunc(emptyArgs),
	intent.ToolGetCategories:     ArgBuilderFunc(emptyArgs),
}

// BuildArgs 按意图（或远端工具名）提取参数；未知工具只传原问题
func BuildArgs(name, question string, now time.Time) (map[string]any, bool) {
	if b, ok := Builders[name]; ok {
		return b.Build(question, now)
	}
	return map[string]any{"question": question}, true
}

func addTransactionArgs(question string, now time.Time) (map[string]any, bool) {
	raw, ok := intent.DetectAmount(question)
	if !ok {
		return nil, false
	}
	amount := intent.NormalizeAmount(question, raw.Value)

	category, ok := intent.DetectCategory(question)
	if !ok {
		category = "other"
		if amount > 0 {
			category = "income"
		}
	}
	keyword, _ := intent.DetectCategoryKeyword(question)

	args := map[string]any{
		"amount":      amount,
		"category":    category,
		"description": BuildDescription(question, raw.Raw, keyword),
	}
	if date, ok := intent.DetectDate(question, now); ok {
		args["date"] = date
	}
	return args, true
}

func balanceArgs(question string, _ time.Time) (map[string]any, bool) {
	return map[string]any{"detailed": intent.IsDetailed(question)}, true
}

func listTransactionsArgs(question string, now time.Time) (map[string]any, bool) {
	limit, ok := intent.DetectLimit(question)
	if !ok {
		limit = intent.DefaultLimit
	}
	args := map[string]any{"limit": limit}
	if category, ok := intent.DetectCategory(question); ok {
		args["category"] = category
	}
	if date, ok := intent.DetectDate(question, now); ok {
		args["start_date"] = date
		args["end_date"] = date
	}
	return args, true
}

func emptyArgs(string, time.Time) (map[string]any, bool) {
	return map[string]any{}, true
}

// BuildDescription 去掉金额、分类关键词与记账动词后的描述；太短时退回关键词或“記帳”
func BuildDescription(question, amountRaw, categoryKeyword string) string {
	text := question
	if amountRaw != "" {
		text = strings.Replace(text, amountRaw, "", 1)
	}
	if categoryKeyword != "" {
		text = strings.Replace(text, categoryKeyword, "", 1)
	}
	text = descVerbRe.ReplaceAllString(text, "")
	text = descDateRe.ReplaceAllString(text, "")
	text = descPunctRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(descSpaceRe.ReplaceAllString(text, " "))
	if len([]rune(text)) >= 2 {
		return text
	}
	if categoryKeyword != "" {
		return categoryKeyword
	}
	return "記帳"
}
