package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestWritePrometheus(t *testing.T) {
	ChatTurnsTotal.WithLabelValues("weather").Inc()
	LLMDuration.WithLabelValues("huggingface").Observe(0.2)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`perfume_chat_turns_total{engine="weather"}`,
		"perfume_llm_duration_seconds_bucket",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
