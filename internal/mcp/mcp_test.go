package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/pkg/config"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

// fakeServer 最小的 MCP over SSE 服务端
type fakeServer struct {
	*httptest.Server
	tools   []map[string]any
	results map[string]string // tool name -> content text

	mu     sync.Mutex
	out    chan string
	calls  []map[string]any
	inited bool
}

func newFakeServer(t *testing.T, tools []map[string]any, results map[string]string) *fakeServer {
	t.Helper()
	fs := &fakeServer{tools: tools, results: results, out: make(chan string, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", fs.handleSSE)
	mux.HandleFunc("/rpc", fs.handleRPC)
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, ": keepalive\r\n\r\nevent: endpoint\r\ndata: /rpc?session=1\r\n\r\n")
	flusher.Flush()
	for {
		select {
		case msg := <-fs.out:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (fs *fakeServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)
	defer w.WriteHeader(http.StatusAccepted)

	method, _ := req["method"].(string)
	id, hasID := req["id"]
	var result any
	switch method {
	case "initialize":
		result = map[string]any{"protocolVersion": ProtocolVersion, "capabilities": map[string]any{}}
	case "notifications/initialized":
		fs.mu.Lock()
		fs.inited = true
		fs.mu.Unlock()
	case "tools/list":
		fs.mu.Lock()
		result = map[string]any{"tools": fs.tools}
		fs.mu.Unlock()
	case "tools/call":
		fs.mu.Lock()
		fs.calls = append(fs.calls, req)
		fs.mu.Unlock()
		name, _ := req["name"].(string)
		result = map[string]any{"content": []map[string]any{{"type": "text", "text": fs.results[name]}}}
	}
	if !hasID {
		return
	}
	// 先发一条无关消息，客户端应按 id 匹配
	fs.out <- `{"jsonrpc":"2.0","id":999,"result":{}}`
	b, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	fs.out <- string(b)
}

func (fs *fakeServer) setTools(tools []map[string]any) {
	fs.mu.Lock()
	fs.tools = tools
	fs.mu.Unlock()
}

func (fs *fakeServer) toolCalls() []map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]map[string]any(nil), fs.calls...)
}

var accountingTools = []map[string]any{
	{"name": "add_transaction", "description": "新增記帳", "inputSchema": map[string]any{
		"type":       "object",
		"properties": map[string]any{"amount": map[string]any{"type": "number"}, "category": map[string]any{"type": "string"}},
		"required":   []string{"amount", "category"},
	}},
	{"name": "get_balance", "description": "查詢餘額"},
	{"name": "list_transactions", "description": "交易明細"},
}

func newAccounting(fs *fakeServer) *Authority {
	cfg := config.MCPConfig{AccountingSSEURL: fs.URL + "/sse", TimeoutMS: 3000}
	return NewAccounting(cfg, log.Nop(), WithClock(func() time.Time {
		return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	}))
}

func TestAuthority_RunBalance(t *testing.T) {
	fs := newFakeServer(t, accountingTools, map[string]string{
		"get_balance": `{"success":true,"balance":1234.5,"total_transactions":12}`,
	})
	a := newAccounting(fs)

	res, err := a.Run(context.Background(), "我的餘額還有多少")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "get_balance", res.Tool)

	calls := fs.toolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_balance", calls[0]["name"])
	params := calls[0]["params"].(map[string]any)
	assert.Equal(t, map[string]any{"detailed": false}, params["arguments"])

	reply, ok := Answer(res)
	require.True(t, ok)
	assert.Equal(t, "目前餘額 NTD 1234.5（共 12 筆交易）", reply)
	fs.mu.Lock()
	assert.True(t, fs.inited)
	fs.mu.Unlock()
}

func TestAuthority_RunBatch(t *testing.T) {
	fs := newFakeServer(t, accountingTools, map[string]string{
		"add_transaction": `{"success":true,"message":"已記錄支出 50 元"}`,
		"get_balance":     `{"balance":900}`,
	})
	a := newAccounting(fs)

	res, err := a.Run(context.Background(), "花了50塊吃午餐\n\n查一下餘額")
	require.NoError(t, err)
	require.True(t, res.IsBatch())
	require.Len(t, res.Results, 2)

	reply, ok := Answer(res)
	require.True(t, ok)
	assert.Equal(t, "【花了50塊吃午餐】\n已記錄支出 50 元\n\n【查一下餘額】\n目前餘額 NTD 900", reply)
}

func TestAuthority_ResolvesAgainstOwnListing(t *testing.T) {
	ctx := context.Background()
	fs := newFakeServer(t, accountingTools, map[string]string{
		"get_balance":    `{"balance":900}`,
		"balance_lookup": `{"balance":100}`,
	})
	a := newAccounting(fs)

	res, err := a.Run(ctx, "我的餘額還有多少")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "get_balance", res.Tool)
	assert.Len(t, a.Tools(), 3)

	// 服务端改名后，新一轮按自己拿到的清单解析
	fs.setTools([]map[string]any{{"name": "balance_lookup", "description": "查詢餘額"}})
	res, err = a.Run(ctx, "我的餘額還有多少")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "balance_lookup", res.Tool)
	require.Len(t, a.Tools(), 1)
	assert.Equal(t, "balance_lookup", a.Tools()[0].Name)

	calls := fs.toolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "get_balance", calls[0]["name"])
	assert.Equal(t, "balance_lookup", calls[1]["name"])
}

func TestAuthority_SkipsWithoutAmount(t *testing.T) {
	fs := newFakeServer(t, accountingTools, nil)
	res, err := newAccounting(fs).Run(context.Background(), "幫我新增一筆")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, fs.toolCalls())
}

func TestAuthority_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	a := NewAccounting(config.MCPConfig{AccountingSSEURL: srv.URL + "/sse"}, log.Nop())
	_, err := a.Run(context.Background(), "餘額")
	require.Error(t, err)
}

func TestAuthority_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()
	a := NewAccounting(config.MCPConfig{AccountingSSEURL: srv.URL}, log.Nop(), WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := a.Run(context.Background(), "餘額")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGeneric_ReadyAnswer(t *testing.T) {
	fs := newFakeServer(t, []map[string]any{{"name": "lookup", "description": "官方資料"}},
		map[string]string{"lookup": `{"readyAnswer":"今日美元匯率 32.1"}`})
	g := NewGeneric(config.MCPConfig{GenericSSEURL: fs.URL + "/sse"}, log.Nop())
	require.NotNil(t, g)

	res, err := g.Run(context.Background(), "美元匯率")
	require.NoError(t, err)
	answer, ok := ReadyAnswer(res)
	require.True(t, ok)
	assert.Equal(t, "今日美元匯率 32.1", answer)
	assert.Equal(t, "美元匯率", fs.toolCalls()[0]["arguments"].(map[string]any)["question"])

	assert.Nil(t, NewGeneric(config.MCPConfig{}, log.Nop()))
}

func TestReadEvents(t *testing.T) {
	in := "event: endpoint\r\ndata: /rpc\r\n\r\n: comment\n\ndata: {\"a\":1}\ndata: {\"b\":2}\n\nevent:\ndata:\n\ndata: tail"
	out := make(chan Event, 8)
	readEvents(strings.NewReader(in), out, make(chan struct{}))

	var got []Event
	for ev := range out {
		got = append(got, ev)
	}
	assert.Equal(t, []Event{
		{Name: "endpoint", Data: "/rpc"},
		{Name: "message", Data: "{\"a\":1}\n{\"b\":2}"},
	}, got)
}

func TestResolveEndpoint(t *testing.T) {
	assert.Equal(t, "http://h:5050/mcp/accounting/rpc/abc",
		resolveEndpoint("http://h:5050/mcp/accounting/sse", "/mcp/accounting/rpc/abc"))
	assert.Equal(t, "http://other/rpc", resolveEndpoint("http://h/sse", "http://other/rpc"))
}
