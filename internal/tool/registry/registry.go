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

package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/annie25726/perfume-assistant/internal/intent"
	"github.com/annie25726/perfume-assistant/internal/tool"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// aliases 工具意图在远端名称或描述中的别名
var aliases = map[string][]*regexp.Regexp{
	intent.ToolGetBalance:        {regexp.MustCompile(`(?i)balance|餘額|剩餘`)},
	intent.ToolGetCategories:     {regexp.MustCompile(`(?i)categor|分類|類別`)},
	intent.ToolGetMonthlySummary: {regexp.MustCompile(`(?i)month|summary|月|彙總|統計`)},
	intent.ToolListTransactions:  {regexp.MustCompile(`(?i)list|transaction|交易|明細|紀錄`)},
	intent.ToolAddTransaction:    {regexp.MustCompile(`(?i)add|transaction|record|記帳|新增|記錄|支出|收入`)},
}

// Registry 远端工具注册表，保持 tools/list 的原始顺序
type Registry struct {
	mu    sync.RWMutex
	tools []tool.Descriptor
}

// New 创建新的 Registry
func New(tools ...tool.Descriptor) *Registry {
	r := &Registry{}
	r.Replace(tools)
	return r
}

// Replace 用新的 tools/list 结果替换全部工具；无名工具忽略
func (r *Registry) Replace(tools []tool.Descriptor) {
	kept := make([]tool.Descriptor, 0, len(tools))
	for _, t := range tools {
		if t.Name != "" {
			kept = append(kept, t)
		}
	}
	r.mu.Lock()
	r.tools = kept
	r.mu.Unlock()
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (tool.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return tool.Descriptor{}, false
}

// List 返回所有工具
func (r *Registry) List() []tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]tool.Descriptor(nil), r.tools...)
}

// Len 工具数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Resolve 意图到远端工具名：同名优先，其次别名匹配名称或描述，最后退回第一个工具
func (r *Registry) Resolve(toolIntent string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tools) == 0 {
		return "", false
	}
	if toolIntent == "" {
		return r.tools[0].Name, true
	}
	for _, t := range r.tools {
		if t.Name == toolIntent {
			return t.Name, true
		}
	}
	for _, t := range r.tools {
		for _, re := range aliases[toolIntent] {
			if re.MatchString(t.Name) || re.MatchString(t.Description) {
				return t.Name, true
			}
		}
	}
	return r.tools[0].Name, true
}

// Validate 用工具声明的 inputSchema 校验参数；没有 schema 时直接通过
func (r *Registry) Validate(name string, args map[string]any) error {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("tool %s: %w", name, perrors.ErrNotFound)
	}
	if len(t.InputSchema) == 0 || string(t.InputSchema) == "null" {
		return nil
	}

	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("序列化工具参数失败: %w", err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(t.InputSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("tool %s schema validation failed: %w", name, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: tool %s: %s", perrors.ErrInvalidArg, name, strings.Join(msgs, "; "))
	}
	return nil
}
