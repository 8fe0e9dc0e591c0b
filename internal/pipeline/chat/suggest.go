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
	"strings"

	"github.com/annie25726/perfume-assistant/internal/intent"
)

const maxSuggestions = 4

var topicSuggestions = map[string][]string{
	intent.TopicWeather: {"其他城市的天氣如何？", "這種天氣適合做什麼活動？", "天氣對心情有什麼影響？"},
	intent.TopicPerfume: {"還有其他香調推薦嗎？", "不同場合適合什麼香水？", "如何選擇適合自己的香水？"},
	intent.TopicMood:    {"如何改善心情？", "有什麼放鬆的方法？", "想聊聊其他感受嗎？"},
	intent.TopicLife:    {"想分享更多生活點滴嗎？", "還有其他想聊的話題嗎？", "有什麼需要建議的嗎？"},
	intent.TopicAdvice:  {"還有其他問題需要建議嗎？", "想了解更多相關資訊嗎？", "有什麼其他想討論的？"},
}

// 没有命中话题时，从问题里找第一个关键字
const keywordRunes = "天氣香水心情生活工作學習興趣問題建議推薦方法如何怎樣"

// Suggestions 按问题与回答的话题生成后续问题，最多 4 条
func Suggestions(message, reply string) []string {
	var out []string
	for _, topic := range intent.DetectTopics(message + " " + reply) {
		out = append(out, topicSuggestions[topic]...)
	}
	if len(out) == 0 {
		out = fallbackSuggestions(message)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

func fallbackSuggestions(message string) []string {
	for _, r := range message {
		if strings.ContainsRune(keywordRunes, r) {
			return []string{"關於" + string(r) + "，還有什麼想了解的嗎？", "還有其他相關問題嗎？", "想深入討論哪個方面？"}
		}
	}
	return []string{"還有什麼想聊的嗎？", "有什麼其他問題嗎？", "想聊聊其他話題嗎？"}
}
