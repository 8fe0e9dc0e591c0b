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

package common

import "strings"

// Stage 分层应答的状态
type Stage string

const (
	StageStart     Stage = "S0_start"
	StageRetrieval Stage = "S1_retrieval"
	StagePrimary   Stage = "S2_primary"
	StageGate      Stage = "S3_quality_gate"
	StageEscalate  Stage = "S4_escalate"
	StageTool      Stage = "S5_tool_authority"
	StageDone      Stage = "S6_done"
	StageWeather   Stage = "weather"
)

// Trace 一轮对话经过的状态，按顺序记录
type Trace struct {
	Stages []Stage
}

// Enter 记录进入某状态
func (t *Trace) Enter(s Stage) {
	if t == nil {
		return
	}
	t.Stages = append(t.Stages, s)
}

// Visited 是否经过某状态
func (t *Trace) Visited(s Stage) bool {
	if t == nil {
		return false
	}
	for _, v := range t.Stages {
		if v == s {
			return true
		}
	}
	return false
}

func (t *Trace) String() string {
	if t == nil {
		return ""
	}
	parts := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, "→")
}
