package chat

import "testing"

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name        string
		corrections int
		hits        int
		output      string
		want        string
	}{
		{"confident with hits", 0, 2, "玫瑰香水適合約會", ""},
		{"two corrections", 2, 3, "玫瑰香水適合約會", ReasonCorrection},
		{"one correction", 1, 3, "玫瑰香水適合約會", ""},
		{"no hits", 0, 0, "玫瑰香水適合約會", ReasonNoHits},
		{"hedge", 0, 1, "我猜你想要花香調", ReasonUncertain},
		{"did you mean", 0, 1, "如果你指的是香氛蠟燭", ReasonUncertain},
		{"plain maybe is fine", 0, 1, "可能需要試香", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escalationReason(tt.corrections, tt.hits, tt.output); got != tt.want {
				t.Errorf("escalationReason() = %q, want %q", got, tt.want)
			}
			if got := ShouldEscalate(tt.corrections, tt.hits, tt.output); got != (tt.want != "") {
				t.Errorf("ShouldEscalate() = %v", got)
			}
		})
	}
}
