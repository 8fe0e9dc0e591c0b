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

package intent

// AuthorityRoute 外部权威工具路由结果
type AuthorityRoute struct {
	Accounting bool
	Generic    bool
}

// Any 是否需要调用任一工具
func (r AuthorityRoute) Any() bool { return r.Accounting || r.Generic }

var genericAuthorityPatterns = compileAll(
	`匯率|股價|即時`,
	`法規|規範|官方|公告`,
)

// ShouldUseGenericAuthority 即时行情或官方法规类问题
func ShouldUseGenericAuthority(text string) bool {
	return anyMatch(genericAuthorityPatterns, text)
}

// ShouldUseAuthority 记账优先；通用工具仅在 genericEnabled 时参与
func ShouldUseAuthority(text string, genericEnabled bool) AuthorityRoute {
	if ShouldUseAccounting(text) {
		return AuthorityRoute{Accounting: true}
	}
	if genericEnabled && ShouldUseGenericAuthority(text) {
		return AuthorityRoute{Generic: true}
	}
	return AuthorityRoute{}
}

// Detect 顶层意图：天气优先于记账
func Detect(text string) Intent {
	if IsWeatherQuery(text) {
		return Weather
	}
	if ShouldUseAccounting(text) {
		return Accounting
	}
	return None
}
