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
	"regexp"
	"strings"
)

// 话题
const (
	TopicWeather = "weather"
	TopicPerfume = "perfume"
	TopicMood    = "mood"
	TopicLife    = "life"
	TopicAdvice  = "advice"
)

// Topic 话题关键词
type Topic struct {
	Name    string
	Pattern *regexp.Regexp
}

// Topics 有序话题表
var Topics = []Topic{
	{TopicWeather, regexp.MustCompile(`天氣|下雨|溫度|氣溫|降雨`)},
	{TopicPerfume, regexp.MustCompile(`香水|香氛|香味|調香|香調`)},
	{TopicMood, regexp.MustCompile(`心情|情緒|感覺|感受|開心|難過`)},
	{TopicLife, regexp.MustCompile(`生活|日常|工作|學習|興趣`)},
	{TopicAdvice, regexp.MustCompile(`建議|推薦|應該|如何|怎樣`)},
}

// DetectTopics 按表顺序返回命中的话题
func DetectTopics(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, t := range Topics {
		if t.Pattern.MatchString(lower) {
			out = append(out, t.Name)
		}
	}
	return out
}

// Label 用于学习统计的意图标签：记账标签优先，其次第一个话题；都没有时为空
func Label(text string) string {
	if labels := DetectAccountingIntents(text); len(labels) > 0 {
		return strings.Join(labels, "+")
	}
	if topics := DetectTopics(text); len(topics) > 0 {
		return topics[0]
	}
	return ""
}
