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

package intent

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 记账工具意图，与远端工具的规范名称一致
const (
	ToolGetBalance        = "get_balance"
	ToolGetCategories     = "get_categories"
	ToolGetMonthlySummary = "get_monthly_summary"
	ToolListTransactions  = "list_transactions"
	ToolAddTransaction    = "add_transaction"
)

// Category 记账分类
type Category struct {
	ID      string
	Pattern *regexp.Regexp
}

// Categories 有序分类表，先命中者优先
var Categories = []Category{
	{"income", regexp.MustCompile(`薪水|薪資|工資|獎金|收入|進帳|賺`)},
	{"food", regexp.MustCompile(`餐飲|餐費|午餐|晚餐|早餐|吃|飲食|外賣|外送|美食`)},
	{"transport", regexp.MustCompile(`交通|地鐵|捷運|公車|計程車|叫車|油錢|加油|高鐵`)},
	{"entertainment", regexp.MustCompile(`娛樂|電影|遊戲|旅遊|演唱會|展覽`)},
	{"shopping", regexp.MustCompile(`購物|衣服|鞋子|日用品|電商|買了`)},
	{"healthcare", regexp.MustCompile(`醫療|看診|藥|藥品|醫院|體檢|掛號`)},
	{"education", regexp.MustCompile(`教育|課程|書籍|學習|培訓|補習`)},
}

var (
	accountingKeywordRe = regexp.MustCompile(`記帳|記賬|帳本|帳戶|餘額|交易|明細|收支|支出|收入|分類|月度|財務|對帳|進帳|匯款|轉帳`)
	accountingVerbRe    = regexp.MustCompile(`新增|記錄|記一筆|花了|支出|收入|花費|付款|消費|買了|進帳|轉帳|匯款|查詢|查看|看`)
	expenseRe           = regexp.MustCompile(`支出|花|花費|付款|消費|買|付了|刷卡|搭捷運|捷運|公車|交通`)
	incomeRe            = regexp.MustCompile(`收入|薪水|薪資|工資|獎金|進帳|賺`)
	arabicAmountRe      = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	chineseAmountRe     = regexp.MustCompile(`[零一二兩三四五六七八九十百千萬]+`)
	isoDateRe           = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	monthDayRe          = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})`)
	limitRe             = regexp.MustCompile(`最近(\d+)\s*筆`)

	balanceRe  = regexp.MustCompile(`餘額|還有多少|剩多少`)
	categoryRe = regexp.MustCompile(`分類|類別`)
	monthlyRe  = regexp.MustCompile(`本月|月度|月報|統計|彙總`)
	listRe     = regexp.MustCompile(`最近|交易|明細|列表|紀錄`)
	addRe      = regexp.MustCompile(`新增|記錄|記一筆|花了|支出|收入`)
	detailedRe = regexp.MustCompile(`詳細|統計`)
)

var chineseDigits = map[rune]float64{
	'零': 0, '一': 1, '二': 2, '兩': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var chineseUnits = map[rune]float64{'十': 10, '百': 100, '千': 1000, '萬': 10000}

// ParseChineseNumber 数字×单位累加，遇单位即结算；兩百五十 = 250
func ParseChineseNumber(s string) float64 {
	var total, current float64
	for _, r := range s {
		if d, ok := chineseDigits[r]; ok {
			current = d
			continue
		}
		if u, ok := chineseUnits[r]; ok {
			if current == 0 {
				current = 1
			}
			total += current * u
			current = 0
		}
	}
	return total + current
}

// Amount 识别出的金额；Raw 为原文片段
type Amount struct {
	Value float64
	Raw   string
}

// DetectAmount 优先阿拉伯数字，其次中文数字
func DetectAmount(text string) (Amount, bool) {
	if m := arabicAmountRe.FindString(text); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return Amount{Value: v, Raw: m}, true
		}
	}
	if m := chineseAmountRe.FindString(text); m != "" {
		return Amount{Value: ParseChineseNumber(m), Raw: m}, true
	}
	return Amount{}, false
}

// DetectCategory 返回第一个命中的分类 id
func DetectCategory(text string) (string, bool) {
	for _, c := range Categories {
		if c.Pattern.MatchString(text) {
			return c.ID, true
		}
	}
	return "", false
}

// DetectCategoryKeyword 返回第一个命中分类中最靠前的关键词
func DetectCategoryKeyword(text string) (string, bool) {
	for _, c := range Categories {
		if m := c.Pattern.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

// NormalizeAmount 支出为负、收入为正；非收入的已分类金额视为支出
func NormalizeAmount(text string, amount float64) float64 {
	isExpense := expenseRe.MatchString(text)
	isIncome := incomeRe.MatchString(text)
	_, hasCategory := DetectCategory(text)
	switch {
	case isExpense && amount > 0:
		return -amount
	case !isIncome && hasCategory && amount > 0:
		return -amount
	case isIncome && amount < 0:
		return math.Abs(amount)
	}
	return amount
}

// DetectDate 解析 今天/昨天/前天、YYYY-MM-DD、M/D（当年），返回 YYYY-MM-DD
func DetectDate(text string, now time.Time) (string, bool) {
	const layout = "2006-01-02"
	switch {
	case strings.Contains(text, "今天"):
		return now.Format(layout), true
	case strings.Contains(text, "昨天"):
		return now.AddDate(0, 0, -1).Format(layout), true
	case strings.Contains(text, "前天"):
		return now.AddDate(0, 0, -2).Format(layout), true
	}
	if m := isoDateRe.FindString(text); m != "" {
		return m, true
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%d-%02d-%02d", now.Year(), month, day), true
	}
	return "", false
}

// DefaultLimit 交易列表默认条数
const DefaultLimit = 20

// DetectLimit 最近N筆，上限 100
func DetectLimit(text string) (int, bool) {
	m := limitRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		n = DefaultLimit
	}
	if n > 100 {
		n = 100
	}
	return n, true
}

// IsDetailed 是否要求详细余额
func IsDetailed(text string) bool {
	return detailedRe.MatchString(text)
}

// PickToolIntent 余额 → 分类 → 月度 → 列表 → 新增
func PickToolIntent(text string) string {
	switch {
	case balanceRe.MatchString(text):
		return ToolGetBalance
	case categoryRe.MatchString(text):
		return ToolGetCategories
	case monthlyRe.MatchString(text):
		return ToolGetMonthlySummary
	case listRe.MatchString(text):
		return ToolListTransactions
	case addRe.MatchString(text):
		return ToolAddTransaction
	}
	return ""
}

// ShouldUseAccounting 关键词、分类或“金额+动词”任一成立
func ShouldUseAccounting(text string) bool {
	if accountingKeywordRe.MatchString(text) {
		return true
	}
	if _, ok := DetectCategory(text); ok {
		return true
	}
	if _, ok := DetectAmount(text); ok && accountingVerbRe.MatchString(text) {
		return true
	}
	return false
}

// DetectAccountingIntents 记账意图标签（去重，按固定顺序）
func DetectAccountingIntents(text string) []string {
	var out []string
	if balanceRe.MatchString(text) {
		out = append(out, "查詢餘額")
	}
	if listRe.MatchString(text) {
		out = append(out, "查詢交易")
	}
	if monthlyRe.MatchString(text) {
		out = append(out, "月度彙總")
	}
	if categoryRe.MatchString(text) {
		out = append(out, "分類清單")
	}
	if addRe.MatchString(text) {
		out = append(out, "新增記帳")
	}
	return out
}
