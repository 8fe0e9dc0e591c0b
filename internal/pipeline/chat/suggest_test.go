package chat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		message string
		reply   string
		want    []string
	}{
		{
			name:    "perfume then advice, capped at four",
			message: "推薦一款香水",
			reply:   "可以試試柑橘調",
			want:    []string{"還有其他香調推薦嗎？", "不同場合適合什麼香水？", "如何選擇適合自己的香水？", "還有其他問題需要建議嗎？"},
		},
		{
			name:    "topic from reply",
			message: "嗨",
			reply:   "今天心情好嗎",
			want:    []string{"如何改善心情？", "有什麼放鬆的方法？", "想聊聊其他感受嗎？"},
		},
		{
			name:    "first keyword rune",
			message: "今天好累",
			reply:   "辛苦了",
			want:    []string{"關於天，還有什麼想了解的嗎？", "還有其他相關問題嗎？", "想深入討論哪個方面？"},
		},
		{
			name:    "generic",
			message: "哈囉",
			reply:   "你好",
			want:    []string{"還有什麼想聊的嗎？", "有什麼其他問題嗎？", "想聊聊其他話題嗎？"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Suggestions(tt.message, tt.reply)); diff != "" {
				t.Errorf("Suggestions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
