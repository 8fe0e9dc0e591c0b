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

package mcp

import (
	"bufio"
	"io"
	"strings"
)

// Event 一个 SSE 事件；Name 缺省为 message
type Event struct {
	Name string
	Data string
}

// readEvents 逐个解析 SSE 事件写入 out，流结束或 done 关闭时返回并关闭 out
func readEvents(r io.Reader, out chan<- Event, done <-chan struct{}) {
	defer close(out)

	br := bufio.NewReader(r)
	name := "message"
	var data []string

	flush := func() bool {
		defer func() {
			name = "message"
			data = data[:0]
		}()
		payload := strings.Join(data, "\n")
		if payload == "" {
			return true
		}
		select {
		case out <- Event{Name: name, Data: payload}:
			return true
		case <-done:
			return false
		}
	}

	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "" && err == nil:
			if !flush() {
				return
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(line[len("event:"):])
			if name == "" {
				name = "message"
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimLeft(line[len("data:"):], " \t"))
		}
		if err != nil {
			// 流末尾未以空行结束的事件丢弃
			return
		}
	}
}
