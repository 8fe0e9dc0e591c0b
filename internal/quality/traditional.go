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

package quality

import (
	"sync"

	"github.com/longbridgeapp/opencc"
)

// 简体 → 台湾正体并套用台湾惯用词（如 软件 → 軟體）
const conversion = "s2twp"

var (
	converterOnce sync.Once
	converter     *opencc.OpenCC
)

func traditionalConverter() *opencc.OpenCC {
	converterOnce.Do(func() {
		cc, err := opencc.New(conversion)
		if err == nil {
			converter = cc
		}
	})
	return converter
}

// ToTraditional 简体转台湾繁体；词典加载或转换失败时原样返回
func ToTraditional(text string) string {
	if text == "" {
		return text
	}
	cc := traditionalConverter()
	if cc == nil {
		return text
	}
	out, err := cc.Convert(text)
	if err != nil {
		return text
	}
	return out
}
