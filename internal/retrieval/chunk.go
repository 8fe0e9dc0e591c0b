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

package retrieval

import "time"

// Origin 知识片段来源
type Origin string

const (
	OriginUpload  Origin = "upload"
	OriginLearned Origin = "fallback"
	OriginRuntime Origin = "runtime"
)

// SourceLearned 学习笔记片段的 source 值，检索时加权
const SourceLearned = "learned"

// Chunk 知识片段；按内容哈希去重，只增不改
type Chunk struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Origin    Origin    `json:"origin"`
	Text      string    `json:"text"`
	Question  string    `json:"question,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Hit 检索结果
type Hit struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Score    float64 `json:"score"`
	RawScore float64 `json:"rawScore"`
}

// IngestResult 批量导入结果
type IngestResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
}

// Stats 片段统计
type Stats struct {
	Documents int `json:"documents"`
	Learned   int `json:"learned"`
}

// LearnedDoc 待导入的学习笔记
type LearnedDoc struct {
	ID        string
	Question  string
	Content   string
	Tags      []string
	CreatedAt time.Time
}
