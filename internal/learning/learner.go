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

package learning

import "sync"

// DefaultForceThreshold 同一意图升级达到该次数后跳过一级模型
const DefaultForceThreshold = 3

// IntentLearner 按意图标签统计升级次数
type IntentLearner struct {
	mu        sync.RWMutex
	counts    map[string]int
	threshold int
}

// NewIntentLearner threshold <= 0 时使用默认值
func NewIntentLearner(threshold int) *IntentLearner {
	if threshold <= 0 {
		threshold = DefaultForceThreshold
	}
	return &IntentLearner{counts: make(map[string]int), threshold: threshold}
}

// Replay 从历史事件恢复计数
func (l *IntentLearner) Replay(events []Event) {
	for _, ev := range events {
		l.Record(ev.Intent, ev.Escalated)
	}
}

// Record 记录一轮结果；空标签不统计
func (l *IntentLearner) Record(label string, escalated bool) {
	if label == "" || !escalated {
		return
	}
	l.mu.Lock()
	l.counts[label]++
	l.mu.Unlock()
}

// ShouldForce 是否直接走升级模型
func (l *IntentLearner) ShouldForce(label string) bool {
	if l == nil || label == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[label] >= l.threshold
}

// Counts 当前计数快照
func (l *IntentLearner) Counts() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}
