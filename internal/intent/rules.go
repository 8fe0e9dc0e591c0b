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

// Package intent 基于规则表的意图识别：天气、记账与外部权威工具闸门。
package intent

import "regexp"

// Intent 意图标识
type Intent string

const (
	None       Intent = ""
	Weather    Intent = "weather"
	Accounting Intent = "accounting"
)

// Rule 有序规则：Pattern 命中即归为 Intent
type Rule struct {
	Pattern *regexp.Regexp
	Intent  Intent
}

// RuleSet 先判排除规则，再按序匹配
type RuleSet struct {
	Exclusions []*regexp.Regexp
	Rules      []Rule
}

// Match 返回第一条命中规则的意图
func (rs RuleSet) Match(text string) (Intent, bool) {
	for _, ex := range rs.Exclusions {
		if ex.MatchString(text) {
			return None, false
		}
	}
	for _, r := range rs.Rules {
		if r.Pattern.MatchString(text) {
			return r.Intent, true
		}
	}
	return None, false
}

func rules(intent Intent, patterns ...string) []Rule {
	out := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, Rule{Pattern: regexp.MustCompile(p), Intent: intent})
	}
	return out
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
