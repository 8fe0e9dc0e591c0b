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

package session

import (
	"regexp"

	"github.com/annie25726/perfume-assistant/internal/intent"
)

// IntentState 多轮槽位状态；Done=false 时下一轮消息视为该意图的槽位回答
type IntentState struct {
	Intent intent.Intent `json:"intent"`
	Done   bool          `json:"done"`
	City   string        `json:"city,omitempty"`
	Region string        `json:"region,omitempty"`
}

// Open 是否有未完成的槽位
func (st *IntentState) Open() bool {
	return st != nil && st.Intent != intent.None && !st.Done
}

// Cleared 取消后的状态
func Cleared() *IntentState {
	return &IntentState{Intent: intent.None, Done: true}
}

var correctionRe = regexp.MustCompile(`不對|錯了|不是這樣|你搞錯|答錯|不正確`)

// IsCorrection 用户是否在纠正上一轮回答
func IsCorrection(text string) bool {
	return correctionRe.MatchString(text)
}
