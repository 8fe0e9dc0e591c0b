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

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/annie25726/perfume-assistant/internal/intent"
	"github.com/annie25726/perfume-assistant/internal/learning"
	"github.com/annie25726/perfume-assistant/internal/mcp"
	"github.com/annie25726/perfume-assistant/internal/model/llm"
	"github.com/annie25726/perfume-assistant/internal/pipeline/common"
	"github.com/annie25726/perfume-assistant/internal/quality"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/internal/runtime/session"
	"github.com/annie25726/perfume-assistant/internal/weather"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
	"github.com/annie25726/perfume-assistant/pkg/log"
	"github.com/annie25726/perfume-assistant/pkg/metrics"
	"github.com/annie25726/perfume-assistant/pkg/tracing"
)

// 回覆来源
const (
	EngineRetrievalOnly = "retrieval-only"
	EnginePrimary       = "primary-model"
	EngineEscalation    = learning.EngineEscalation
	EngineTool          = "tool-authority"
	EngineWeather       = "weather"
	EngineError         = "error"
)

// ApologyReply 无法给出回答时的致歉回复
const ApologyReply = "抱歉，目前無法取得回答，請稍後再試。"

const (
	askCityReply       = "你想查哪裡的天氣？請選擇城市或直接告訴我縣市名稱"
	askCityAgainReply  = "請選擇城市或直接告訴我縣市名稱"
	defaultEscalateTTL = 30 * time.Second
)

var weatherModelInfo = llm.ModelInfo{Model: "CWA API", API: "中央氣象署開放資料平台", Provider: "CWA"}

// Model 一个模型层级
type Model interface {
	Ask(ctx context.Context, prompt string) (llm.Reply, error)
	Info() llm.ModelInfo
	Gate() quality.Gate
}

// Retriever 知识库检索
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.Hit, error)
}

// Authority 外部权威工具；返回 nil, nil 表示没有可调用的工具
type Authority interface {
	Run(ctx context.Context, question string) (*mcp.ToolCallResult, error)
}

// WeatherService 天气回复
type WeatherService interface {
	CityReply(ctx context.Context, city intent.City) (string, bool)
	RegionReply(ctx context.Context, region string) string
}

// Learner 学习闭环
type Learner interface {
	Observe(ctx context.Context, t learning.Turn) (learning.Outcome, error)
	ShouldForce(label string) bool
}

// Deps 应答器依赖；除 Sessions 外均可为 nil
type Deps struct {
	Sessions   *session.Manager
	Retriever  Retriever
	Primary    Model
	Escalation Model
	Accounting Authority
	Generic    Authority
	Weather    WeatherService
	Learning   Learner
}

// Options 应答器参数
type Options struct {
	TopK              int
	EscalationTimeout time.Duration
}

// Request 一轮对话请求
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// Response 一轮对话回复
type Response struct {
	OK            bool           `json:"ok"`
	SessionID     string         `json:"sessionId"`
	Type          string         `json:"type"`
	Reply         string         `json:"reply"`
	Engine        string         `json:"engine"`
	Suggestions   []string       `json:"suggestions"`
	ModelInfo     *llm.ModelInfo `json:"modelInfo,omitempty"`
	ShowCityCards bool           `json:"showCityCards,omitempty"`

	Trace *common.Trace `json:"-"`
}

// Responder 分层应答：天气槽位、工具权威、检索、一级模型、质量门槛、升级模型
type Responder struct {
	deps   Deps
	opts   Options
	logger *log.Logger
}

// NewResponder 创建应答器
func NewResponder(deps Deps, opts Options, logger *log.Logger) *Responder {
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.EscalationTimeout <= 0 {
		opts.EscalationTimeout = defaultEscalateTTL
	}
	return &Responder{deps: deps, opts: opts, logger: logger.Component("chat")}
}

// turn 单轮处理中的中间状态
type turn struct {
	sess    *session.Session
	message string
	state   *session.IntentState
	trace   *common.Trace
}

// Chat 处理一轮对话；除空消息外总是返回可展示的回复
func (r *Responder) Chat(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, common.NewValidationError("message", common.ErrEmptyMessage.Error())
	}

	trace := &common.Trace{}
	trace.Enter(common.StageStart)
	sess, err := r.openSession(ctx, req.SessionID)
	if err != nil {
		r.logger.Error("会话读取失败", "session", req.SessionID, "error", common.NewPipelineError(common.StageStart, common.ErrSessionFailed.Error(), err))
		return r.reply(failed(), req.SessionID, trace), nil
	}

	ctx, span := tracing.StartTurnSpan(ctx, sess.ID)
	t := &turn{sess: sess, message: message, state: sess.State(), trace: trace}
	resp, err := r.handle(ctx, t)
	tracing.EndSpan(span, err)
	if err != nil {
		r.logger.Error("对话处理失败", "session", sess.ID, "error", err)
		resp = failed()
	}
	resp = r.reply(resp, sess.ID, trace)

	if err := r.deps.Sessions.AppendTurns(ctx, sess.ID,
		session.Turn{Role: session.RoleUser, Content: message},
		session.Turn{Role: session.RoleAssistant, Content: resp.Reply},
	); err != nil {
		r.logger.Warn("保存对话历史失败", "session", sess.ID, "error", common.NewPipelineError(common.StageDone, common.ErrSessionFailed.Error(), err))
	}
	return resp, nil
}

// openSession 客户端带来的 id 不被存储接受时改用新会话
func (r *Responder) openSession(ctx context.Context, id string) (*session.Session, error) {
	sess, err := r.deps.Sessions.GetOrCreate(ctx, id)
	if err != nil && id != "" && errors.Is(err, perrors.ErrInvalidArg) {
		r.logger.Warn("会话 id 不可用，改用新会话", "session", id, "error", err)
		return r.deps.Sessions.GetOrCreate(ctx, "")
	}
	return sess, err
}

func (r *Responder) reply(resp *Response, sessionID string, trace *common.Trace) *Response {
	resp.OK = true
	resp.Type = "text"
	resp.SessionID = sessionID
	resp.Trace = trace
	metrics.ChatTurnsTotal.WithLabelValues(resp.Engine).Inc()
	return resp
}

func (r *Responder) handle(ctx context.Context, t *turn) (*Response, error) {
	if t.state.Open() && t.state.Intent == intent.Weather && r.deps.Weather != nil {
		resp, done, err := r.continueWeather(ctx, t)
		if err != nil || done {
			return resp, err
		}
	} else if r.deps.Weather != nil && intent.IsWeatherQuery(t.message) {
		return r.startWeather(ctx, t)
	}
	return r.tiered(ctx, t)
}

// continueWeather 槽位未完成时把本轮消息当作城市回答；取消时 done=false，交回一般流程
func (r *Responder) continueWeather(ctx context.Context, t *turn) (*Response, bool, error) {
	t.trace.Enter(common.StageWeather)
	if resp, ok, err := r.resolveWeather(ctx, t); ok || err != nil {
		return resp, true, err
	}
	if intent.IsCancellation(t.message) {
		cleared := session.Cleared()
		if err := r.deps.Sessions.SetIntentState(ctx, t.sess.ID, cleared); err != nil {
			return nil, true, common.NewPipelineError(common.StageWeather, common.ErrSessionFailed.Error(), err)
		}
		t.state = cleared
		return nil, false, nil
	}
	return weatherResponse(askCityAgainReply, nil, true), true, nil
}

func (r *Responder) startWeather(ctx context.Context, t *turn) (*Response, error) {
	t.trace.Enter(common.StageWeather)
	if resp, ok, err := r.resolveWeather(ctx, t); ok || err != nil {
		return resp, err
	}
	open := &session.IntentState{Intent: intent.Weather, Done: false}
	if err := r.deps.Sessions.SetIntentState(ctx, t.sess.ID, open); err != nil {
		return nil, common.NewPipelineError(common.StageWeather, common.ErrSessionFailed.Error(), err)
	}
	t.state = open
	return weatherResponse(askCityReply, nil, true), nil
}

// resolveWeather 消息里有城市或地区时查询并关闭槽位
func (r *Responder) resolveWeather(ctx context.Context, t *turn) (*Response, bool, error) {
	var (
		reply       string
		suggestions []string
		done        = &session.IntentState{Intent: intent.Weather, Done: true}
	)
	if city, ok := intent.ExtractCity(t.message); ok {
		text, fetched := r.deps.Weather.CityReply(ctx, city)
		reply = text
		if fetched {
			suggestions = append([]string(nil), weather.CitySuggestions...)
		}
		done.City = city.Name
	} else if region, ok := intent.ExtractRegion(t.message); ok {
		reply = r.deps.Weather.RegionReply(ctx, region)
		done.Region = region
	} else {
		return nil, false, nil
	}

	if err := r.deps.Sessions.SetIntentState(ctx, t.sess.ID, done); err != nil {
		return nil, true, common.NewPipelineError(common.StageWeather, common.ErrSessionFailed.Error(), err)
	}
	t.state = done
	r.observe(ctx, t, learning.Turn{Question: t.message, Answer: reply, Engine: EngineWeather, Intent: intent.Weather, Label: string(intent.Weather)})
	return weatherResponse(reply, suggestions, false), true, nil
}

func weatherResponse(reply string, suggestions []string, showCities bool) *Response {
	info := weatherModelInfo
	return &Response{
		Reply:         reply,
		Engine:        EngineWeather,
		Suggestions:   suggestions,
		ModelInfo:     &info,
		ShowCityCards: showCities,
	}
}

// toolOutcome 工具权威轨道的结果
type toolOutcome struct {
	result *mcp.ToolCallResult
	answer string
	ready  bool
}

// tiered S1 检索与 S5 工具并行，随后 S2→S3→S4
func (r *Responder) tiered(ctx context.Context, t *turn) (*Response, error) {
	corrections, err := r.deps.Sessions.RecordCorrection(ctx, t.sess.ID, t.message)
	if err != nil {
		r.logger.Warn("纠错计数失败", "session", t.sess.ID, "error", err)
	}
	label := intent.Label(t.message)

	var (
		hits []retrieval.Hit
		tool toolOutcome
		g    errgroup.Group
	)
	t.trace.Enter(common.StageRetrieval)
	g.Go(func() error {
		hits = r.retrieve(ctx, t.message)
		return nil
	})
	if route := intent.ShouldUseAuthority(t.message, r.deps.Generic != nil); route.Any() {
		t.trace.Enter(common.StageTool)
		g.Go(func() error {
			tool = r.runAuthority(ctx, route, t.message)
			return nil
		})
	}
	_ = g.Wait()

	if tool.ready {
		resp := &Response{
			Reply:     tool.answer,
			Engine:    EngineTool,
			ModelInfo: &llm.ModelInfo{Model: tool.result.Tool, API: "MCP", Provider: "MCP"},
		}
		return r.finish(ctx, t, resp, label, nil), nil
	}

	primary, escalation := r.deps.Primary, r.deps.Escalation
	if primary == nil && escalation == nil {
		return r.finish(ctx, t, retrievalOnly(hits), label, nil), nil
	}

	var (
		reply   llm.Reply
		reason  string
		replied bool
	)
	switch {
	case primary == nil:
		reason = ReasonForced
	case r.deps.Learning != nil && r.deps.Learning.ShouldForce(label) && escalation != nil:
		reason = ReasonForced
	default:
		reply, reason, replied = r.askPrimary(ctx, t, primary, hits, corrections)
	}

	if reason == "" {
		return r.finish(ctx, t, modelResponse(reply.Text, EnginePrimary, primary.Info()), label, nil), nil
	}
	if escalation == nil {
		// 未配置升级模型时一级输出即最终结果
		if replied && reply.Text != "" {
			return r.finish(ctx, t, modelResponse(reply.Text, EnginePrimary, primary.Info()), label, nil), nil
		}
		return r.finish(ctx, t, apology(), label, nil), nil
	}

	metrics.EscalationsTotal.WithLabelValues(reason).Inc()
	resp := r.escalate(ctx, t, escalation, hits, tool.result)
	if resp.Engine == EngineEscalation && corrections > 0 {
		if err := r.deps.Sessions.ResetCorrections(ctx, t.sess.ID); err != nil {
			r.logger.Warn("纠错计数清零失败", "session", t.sess.ID, "error", err)
		}
	}
	return r.finish(ctx, t, resp, label, tool.result), nil
}

func (r *Responder) retrieve(ctx context.Context, message string) []retrieval.Hit {
	if r.deps.Retriever == nil {
		return nil
	}
	hits, err := r.deps.Retriever.Search(ctx, message, r.opts.TopK)
	if err != nil {
		r.logger.Warn("知识库检索失败", "error", common.NewPipelineError(common.StageRetrieval, common.ErrRetrievalFailed.Error(), err))
		return nil
	}
	return hits
}

// runAuthority 失败、超时或无结果时返回零值，不影响后续层级
func (r *Responder) runAuthority(ctx context.Context, route intent.AuthorityRoute, message string) toolOutcome {
	a := r.deps.Accounting
	if route.Generic {
		a = r.deps.Generic
	}
	if a == nil {
		return toolOutcome{}
	}
	res, err := a.Run(ctx, message)
	if err != nil {
		r.logger.Warn("外部工具调用失败", "error", common.NewPipelineError(common.StageTool, common.ErrToolFailed.Error(), err))
		return toolOutcome{}
	}
	if res == nil {
		return toolOutcome{}
	}

	out := toolOutcome{result: res}
	if route.Generic {
		out.answer, out.ready = mcp.ReadyAnswer(res)
	} else {
		out.answer, out.ready = mcp.Answer(res)
	}
	return out
}

// askPrimary S2 + S3；返回非空 reason 表示需要升级
func (r *Responder) askPrimary(ctx context.Context, t *turn, primary Model, hits []retrieval.Hit, corrections int) (llm.Reply, string, bool) {
	t.trace.Enter(common.StagePrimary)
	info := primary.Info()
	tierCtx, span := tracing.StartTierSpan(ctx, "primary", info.Provider)
	reply, err := primary.Ask(tierCtx, PrimaryPrompt(t.sess.CopyMessages(), hits, t.message))
	tracing.EndSpan(span, err)
	if err != nil {
		r.logger.Warn("一级模型调用失败", "error", common.NewPipelineError(common.StagePrimary, common.ErrGenerationFailed.Error(), err))
		return llm.Reply{}, ReasonPrimaryError, false
	}

	t.trace.Enter(common.StageGate)
	if !primary.Gate().Accept(quality.Output{Text: reply.Text, Meta: reply.Meta}) {
		return reply, ReasonQuality, true
	}
	return reply, escalationReason(corrections, len(hits), reply.Text), true
}

// escalate S4；失败时返回致歉回复
func (r *Responder) escalate(ctx context.Context, t *turn, escalation Model, hits []retrieval.Hit, tool *mcp.ToolCallResult) *Response {
	t.trace.Enter(common.StageEscalate)
	ctx, cancel := context.WithTimeout(ctx, r.opts.EscalationTimeout)
	defer cancel()

	info := escalation.Info()
	tierCtx, span := tracing.StartTierSpan(ctx, "escalation", info.Provider)
	reply, err := escalation.Ask(tierCtx, EscalationPrompt(t.message, hits, tool))
	tracing.EndSpan(span, err)
	if err != nil {
		r.logger.Error("升级模型调用失败", "error", common.NewPipelineError(common.StageEscalate, common.ErrEscalationFailed.Error(), err))
		return apology()
	}
	return modelResponse(reply.Text, EngineEscalation, info)
}

func modelResponse(text, engine string, info llm.ModelInfo) *Response {
	return &Response{Reply: text, Engine: engine, ModelInfo: &info}
}

func retrievalOnly(hits []retrieval.Hit) *Response {
	if len(hits) == 0 {
		return apology()
	}
	return &Response{Reply: hits[0].Text, Engine: EngineRetrievalOnly}
}

func apology() *Response {
	return &Response{Reply: ApologyReply, Engine: EngineError}
}

// failed 流水线中途失败，跳过 S6
func failed() *Response {
	resp := apology()
	resp.Suggestions = []string{}
	return resp
}

// finish S6：学习、建议问题
func (r *Responder) finish(ctx context.Context, t *turn, resp *Response, label string, tool *mcp.ToolCallResult) *Response {
	t.trace.Enter(common.StageDone)

	source := ""
	if resp.Engine == EngineEscalation {
		source = learning.SourcePrefix + "escalation"
		if tool != nil {
			source += "+mcp"
		}
	}
	r.observe(ctx, t, learning.Turn{
		Question:  t.message,
		Answer:    resp.Reply,
		Engine:    resp.Engine,
		Intent:    intent.Detect(t.message),
		Label:     label,
		Source:    source,
		Escalated: resp.Engine == EngineEscalation,
	})

	if !t.state.Open() {
		resp.Suggestions = Suggestions(t.message, resp.Reply)
	}
	return resp
}

func (r *Responder) observe(ctx context.Context, t *turn, lt learning.Turn) {
	if r.deps.Learning == nil {
		return
	}
	lt.SessionID = t.sess.ID
	if _, err := r.deps.Learning.Observe(ctx, lt); err != nil {
		r.logger.Warn("学习记录失败", "session", t.sess.ID, "error", err)
	}
}
