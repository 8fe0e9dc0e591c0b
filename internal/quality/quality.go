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

// Package quality 对模型输出做表层质量评估与清洗：英文比例、乱码检测、引用剥离、繁体转换。
package quality

import (
	"regexp"
	"strings"
	"unicode"
)

// Meta 质量信号
type Meta struct {
	EnglishRatio float64 `json:"englishRatio"`
	Garbled      bool    `json:"garbled"`
}

// Options 清洗选项
type Options struct {
	// KeepChinese 仅保留中文、数字、ASCII 字母与常用中文标点
	KeepChinese bool
}

// Output Process 的结果
type Output struct {
	Text    string `json:"text"`
	Raw     string `json:"raw"`
	Cleaned string `json:"cleaned"`
	Meta    Meta   `json:"meta"`
}

var (
	cyrillicRe   = regexp.MustCompile(`[А-Яа-яЁёЇїІіЄєҐґ]`)
	emptyParenRe = regexp.MustCompile(`\(\s*\)`)
	authorCiteRe = regexp.MustCompile(`\((?:[A-Z][A-Za-z.'\-\s]+)(?:et\s+al\.)?,\s*\d{4}\)`)
	numberCiteRe = regexp.MustCompile(`\[\d{1,3}\]`)
	referencesRe = regexp.MustCompile(`(?i)\n{2,}(References|參考資料|参考资料)[\s\S]*$`)
	spaceRe      = regexp.MustCompile(`\s+`)
	nonChineseRe = regexp.MustCompile(`[^\x{4e00}-\x{9fff}0-9a-zA-Z。，、！？；：「」『』（）()\-—…\s]`)
)

// EnglishRatio ASCII 字母数 / 非空白字符数（分母至少为 1）
func EnglishRatio(text string) float64 {
	letters, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if total == 0 {
		total = 1
	}
	return float64(letters) / float64(total)
}

// IsGarbled 含替换字符、倒问号或西里尔字母即视为乱码
func IsGarbled(text string) bool {
	if strings.ContainsRune(text, '�') || strings.ContainsRune(text, '¿') {
		return true
	}
	return cyrillicRe.MatchString(text)
}

// Evaluate 计算质量信号
func Evaluate(text string) Meta {
	return Meta{EnglishRatio: EnglishRatio(text), Garbled: IsGarbled(text)}
}

func stripMojibake(s string) string {
	s = strings.ReplaceAll(s, "�", "")
	s = strings.ReplaceAll(s, "¿", "")
	return emptyParenRe.ReplaceAllString(s, "")
}

func stripCitations(s string) string {
	s = authorCiteRe.ReplaceAllString(s, "")
	s = numberCiteRe.ReplaceAllString(s, "")
	return referencesRe.ReplaceAllString(s, "")
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Sanitize 清洗文本；参考文献段落需在折叠空白前剥离
func Sanitize(text string, opts Options) string {
	s := stripMojibake(text)
	s = stripCitations(s)
	s = collapse(s)
	if opts.KeepChinese {
		s = collapse(nonChineseRe.ReplaceAllString(s, ""))
	}
	return ToTraditional(s)
}

// Process 模型输出后处理：英文比例取清洗后文本，乱码检测取原文
func Process(raw string, opts Options) Output {
	s := stripMojibake(raw)
	s = stripCitations(s)
	s = collapse(s)
	if opts.KeepChinese {
		s = collapse(nonChineseRe.ReplaceAllString(s, ""))
	}
	return Output{
		Text:    ToTraditional(s),
		Raw:     raw,
		Cleaned: s,
		Meta: Meta{
			EnglishRatio: EnglishRatio(s),
			Garbled:      IsGarbled(raw),
		},
	}
}

// Gate 一级模型输出的语言门槛
type Gate struct {
	EnglishRatioThreshold float64
	MinLength             int
}

// DefaultGate 默认门槛
var DefaultGate = Gate{EnglishRatioThreshold: 0.18, MinLength: 4}

// Reject 原因
const (
	ReasonGarbled = "garbled"
	ReasonEnglish = "english"
	ReasonShort   = "short"
)

// Check 返回拒绝原因，空串表示通过
func (g Gate) Check(out Output) string {
	switch {
	case out.Meta.Garbled:
		return ReasonGarbled
	case out.Meta.EnglishRatio > g.EnglishRatioThreshold:
		return ReasonEnglish
	case len([]rune(out.Text)) < g.MinLength:
		return ReasonShort
	}
	return ""
}

// Accept 是否通过门槛
func (g Gate) Accept(out Output) bool {
	return g.Check(out) == ""
}
