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

package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_JSONAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "debug"}, &buf).Component("retrieval")
	l.Debug("hello", "k", 1)
	out := buf.String()
	if !strings.Contains(out, `"component":"retrieval"`) {
		t.Errorf("missing component field: %s", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("missing msg: %s", out)
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", Format: "text"}, &buf)
	l.Info("skip")
	l.Warn("keep")
	if strings.Contains(buf.String(), "skip") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "keep") {
		t.Error("warn should be written")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "x": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNilLoggerComponent(t *testing.T) {
	var l *Logger
	if l.Component("x") == nil {
		t.Error("nil receiver should still return a logger")
	}
}
