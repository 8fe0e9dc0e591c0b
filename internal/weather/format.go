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

package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/annie25726/perfume-assistant/internal/intent"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

// NotAvailable 缺值占位
const NotAvailable = "N/A"

// 城市查询成功后的固定建议
var CitySuggestions = []string{
	"還有什麼需要為您服務的嗎？",
	"其他城市的天氣如何？",
	"還有其他問題嗎？",
}

// Report 单个地点的第一个预报时段
type Report struct {
	Location string
	Weather  string
	MinTemp  string
	MaxTemp  string
	Rain     string
	Start    string
}

// Temperature "min～max" 或 N/A
func (r Report) Temperature() string {
	if r.MinTemp == "" || r.MaxTemp == "" {
		return NotAvailable
	}
	return r.MinTemp + "～" + r.MaxTemp
}

// RainProbability 降雨机率数字或 N/A
func (r Report) RainProbability() string {
	if r.Rain == "" {
		return NotAvailable
	}
	return r.Rain
}

// ReportOf 读取地点各要素第一个时段的参数
func ReportOf(loc Location) Report {
	r := Report{Location: loc.LocationName}
	for _, e := range loc.WeatherElement {
		if len(e.Time) == 0 {
			continue
		}
		v := strings.TrimSpace(e.Time[0].Parameter.ParameterName)
		switch e.ElementName {
		case "Wx":
			r.Weather = v
			r.Start = e.Time[0].StartTime
		case "MinT":
			r.MinTemp = v
		case "MaxT":
			r.MaxTemp = v
		case "PoP":
			r.Rain = v
		}
	}
	return r
}

// CityReply 城市天气回复；缺值时不加单位
func CityReply(city string, r Report) string {
	temp := r.Temperature()
	if temp != NotAvailable {
		temp += "°C"
	}
	rain := r.RainProbability()
	if rain != NotAvailable {
		rain += "%"
	}
	return strings.Join([]string{
		fmt.Sprintf("這是目前【%s】的天氣 ☀️", city),
		"",
		"🌡 氣溫：" + temp,
		"🌧 降雨機率：" + rain,
	}, "\n")
}

// RegionSummary 地区内每个地点一行；没有匹配地点时返回空串
func RegionSummary(ds *Dataset, region string) string {
	wanted := make(map[string]bool)
	for _, name := range intent.RegionLocations[region] {
		wanted[name] = true
	}

	var lines []string
	for _, loc := range ds.Locations() {
		if region != intent.RegionAll && !wanted[loc.LocationName] {
			continue
		}
		r := ReportOf(loc)
		wx := r.Weather
		if wx == "" {
			wx = NotAvailable
		}
		temp := r.Temperature()
		if temp != NotAvailable {
			temp += "°C"
		}
		rain := r.RainProbability()
		if rain != NotAvailable {
			rain += "%"
		}
		lines = append(lines, fmt.Sprintf("%s：%s，%s，降雨 %s", loc.LocationName, wx, temp, rain))
	}
	return strings.Join(lines, "\n")
}

// Service 把预报转成对话回复
type Service struct {
	provider Provider
	logger   *log.Logger
}

// NewService 创建天气服务
func NewService(provider Provider, logger *log.Logger) *Service {
	return &Service{provider: provider, logger: logger.Component("weather")}
}

// CityReply 查询城市并生成回复；取数失败与解析失败分别给出不同提示，此时 ok=false
func (s *Service) CityReply(ctx context.Context, city intent.City) (reply string, ok bool) {
	ds, err := s.provider.Forecast(ctx, city.Location)
	if err != nil && !errors.Is(err, ErrParse) {
		s.logger.Warn("天气查询失败", "city", city.Location, "error", err)
		return fmt.Sprintf("無法取得【%s】的天氣資料：%s", city.Name, userMessage(err)), false
	}
	locs := ds.Locations()
	if err != nil || len(locs) == 0 {
		s.logger.Warn("天气资料无法解析", "city", city.Location, "error", err)
		return fmt.Sprintf("無法解析【%s】的天氣資料，請稍後再試", city.Name), false
	}

	loc := locs[0]
	for _, l := range locs {
		if l.LocationName == city.Location {
			loc = l
			break
		}
	}
	return CityReply(city.Name, ReportOf(loc)), true
}

// RegionReply 地区天气概况
func (s *Service) RegionReply(ctx context.Context, region string) string {
	summary := ""
	ds, err := s.provider.Forecast(ctx, "")
	if err != nil {
		s.logger.Warn("地区天气查询失败", "region", region, "error", err)
	} else {
		summary = RegionSummary(ds, region)
	}
	if summary == "" {
		summary = "暫無資料"
	}
	return fmt.Sprintf("【%s】天氣概況：\n%s", region, summary)
}

func userMessage(err error) string {
	if errors.Is(err, perrors.ErrMissingCredential) {
		return "CWA_API_KEY 未設定"
	}
	return "API 錯誤"
}
