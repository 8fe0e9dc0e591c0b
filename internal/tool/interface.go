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

package tool

import (
	"encoding/json"
	"time"
)

// Descriptor 远端工具描述（MCP tools/list 的返回项）
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ArgBuilder 单个工具意图的参数提取策略；ok=false 表示无法从问题中凑齐参数，应跳过调用
type ArgBuilder interface {
	Build(question string, now time.Time) (args map[string]any, ok bool)
}

// ArgBuilderFunc 函数适配
type ArgBuilderFunc func(question string, now time.Time) (map[string]any, bool)

// Build 实现 ArgBuilder
func (f ArgBuilderFunc) Build(question string, now time.Time) (map[string]any, bool) {
	return f(question, now)
}
