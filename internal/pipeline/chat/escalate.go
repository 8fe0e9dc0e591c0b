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

package chat

import "strings"

// 升级原因，同时作为 perfume_escalations_total 的标签
const (
	ReasonForced       = "forced"
	ReasonPrimaryError = "primary_error"
	ReasonQuality      = "quality"
	ReasonCorrection   = "correction"
	ReasonNoHits       = "no_hits"
	ReasonUncertain    = "uncertain"
)

var uncertainMarkers = []string{"可能是", "如果你指的是", "也許", "未必", "不一定", "我猜"}

// ShouldEscalate 用户多次纠错、没有检索命中或回答含不确定措辞时升级
func ShouldEscalate(correctionCount, ragHits int, output string) bool {
	return escalationReason(correctionCount, ragHits, output) != ""
}

func escalationReason(correctionCount, ragHits int, output string) string {
	switch {
	case correctionCount >= 2:
		return ReasonCorrection
	case ragHits == 0:
		return ReasonNoHits
	}
	for _, m := range uncertainMarkers {
		if strings.Contains(output, m) {
			return ReasonUncertain
		}
	}
	return ""
}
