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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/annie25726/perfume-assistant/internal/tool"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// ProtocolVersion 握手使用的 MCP 协议版本
const ProtocolVersion = "2024-11-05"

// ErrClosed 事件流在收到期望的消息前结束
var ErrClosed = errors.New("mcp: event stream closed")

// ClientInfo initialize 中的客户端信息
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Client MCP over SSE 客户端；每次 Connect 建立一条独立会话
type Client struct {
	sseURL string
	info   ClientInfo
	http   *resty.Client
}

// NewClient 创建客户端；不设置整体超时，由调用方的 context 控制
func NewClient(sseURL string, info ClientInfo) *Client {
	return &Client{sseURL: sseURL, info: info, http: resty.New()}
}

// URL SSE 地址
func (c *Client) URL() string { return c.sseURL }

// rpcRequest tools/call 时在顶层重复 name/arguments，兼容只读顶层字段的服务端
type rpcRequest struct {
	JSONRPC   string         `json:"jsonrpc"`
	ID        *int           `json:"id,omitempty"`
	Method    string         `json:"method"`
	Params    any            `json:"params"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Session 一条 SSE 连接及其 JSON-RPC 端点
type Session struct {
	client   *Client
	endpoint string
	events   chan Event
	done     chan struct{}
	body     interface{ Close() error }
	once     sync.Once
	nextID   int
}

// Connect 打开事件流并等待 endpoint 事件
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		Get(c.sseURL)
	if err != nil {
		return nil, fmt.Errorf("连接 MCP SSE 失败: %w", err)
	}
	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		if body != nil {
			body.Close()
		}
		return nil, perrors.Upstream("mcp", resp.StatusCode(), "")
	}
	if body == nil {
		return nil, ErrClosed
	}

	s := &Session{
		client: c,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		body:   body,
		nextID: 1,
	}
	go readEvents(body, s.events, s.done)

	endpoint, err := s.waitEndpoint(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.endpoint = resolveEndpoint(c.sseURL, endpoint)
	return s, nil
}

// Close 关闭事件流
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.body.Close()
	})
}

// Endpoint JSON-RPC POST 地址
func (s *Session) Endpoint() string { return s.endpoint }

func (s *Session) next(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, ErrClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, fmt.Errorf("%w: %v", perrors.ErrTimeout, ctx.Err())
	}
}

func (s *Session) waitEndpoint(ctx context.Context) (string, error) {
	for {
		ev, err := s.next(ctx)
		if err != nil {
			return "", err
		}
		if ev.Name == "endpoint" {
			return strings.TrimSpace(ev.Data), nil
		}
		var msg struct {
			Endpoint string `json:"endpoint"`
		}
		if json.Unmarshal([]byte(ev.Data), &msg) == nil && msg.Endpoint != "" {
			return msg.Endpoint, nil
		}
	}
}

func (s *Session) waitResponse(ctx context.Context, id int) (*rpcResponse, error) {
	want := strconv.Itoa(id)
	for {
		ev, err := s.next(ctx)
		if err != nil {
			return nil, err
		}
		if ev.Name != "message" {
			continue
		}
		var msg rpcResponse
		if json.Unmarshal([]byte(ev.Data), &msg) != nil {
			continue
		}
		if string(bytes.TrimSpace(msg.ID)) == want {
			return &msg, nil
		}
	}
}

func (s *Session) post(ctx context.Context, payload rpcRequest) error {
	resp, err := s.client.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("发送 MCP 请求失败: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return perrors.Upstream("mcp", resp.StatusCode(), resp.String())
	}
	return nil
}

// Call 发送请求并等待同 id 的响应；JSON-RPC error 作为上游错误返回
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID
	s.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if p, ok := params.(callParams); ok {
		req.Name = p.Name
		req.Arguments = p.Arguments
	}
	if err := s.post(ctx, req); err != nil {
		return nil, err
	}
	resp, err := s.waitResponse(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: mcp %s: %d %s", perrors.ErrUpstream, method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// Notify 发送通知，不等待响应
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	return s.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// Initialize 握手并发送 notifications/initialized
func (s *Session) Initialize(ctx context.Context) error {
	result, err := s.Call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      s.client.info,
	})
	if err != nil {
		return err
	}
	if len(result) == 0 || string(result) == "null" {
		return fmt.Errorf("%w: initialize 未回传结果", perrors.ErrUpstream)
	}
	return s.Notify(ctx, "notifications/initialized", map[string]any{})
}

// ListTools tools/list
func (s *Session) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	result, err := s.Call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []tool.Descriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("解析 tools/list 失败: %w", err)
	}
	return out.Tools, nil
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallTool tools/call，返回 result 原文
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return s.Call(ctx, "tools/call", callParams{Name: name, Arguments: args})
}

// resolveEndpoint 相对 endpoint 按 SSE 地址解析
func resolveEndpoint(sseURL, endpoint string) string {
	base, err := url.Parse(sseURL)
	if err != nil {
		return endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return base.ResolveReference(ref).String()
}
