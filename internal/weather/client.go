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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/annie25726/perfume-assistant/internal/storage/cache"
	"github.com/annie25726/perfume-assistant/pkg/config"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

// DatasetID 一般天气预报 36 小时
const DatasetID = "F-C0032-001"

// ErrParse 气象署响应无法解析或没有地点资料
var ErrParse = errors.New("weather: unparseable response")

// Dataset F-C0032-001 响应中用到的部分
type Dataset struct {
	Success string `json:"success"`
	Records *struct {
		Location []Location `json:"location"`
	} `json:"records"`
}

// Location 单个地点
type Location struct {
	LocationName   string    `json:"locationName"`
	WeatherElement []Element `json:"weatherElement"`
}

// Element 气象要素（Wx、PoP、MinT、MaxT、CI）
type Element struct {
	ElementName string `json:"elementName"`
	Time        []struct {
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		Parameter struct {
			ParameterName string `json:"parameterName"`
		} `json:"parameter"`
	} `json:"time"`
}

// Locations 返回地点列表，缺少 records 时为 nil
func (d *Dataset) Locations() []Location {
	if d == nil || d.Records == nil {
		return nil
	}
	return d.Records.Location
}

// Provider 天气数据来源
type Provider interface {
	Forecast(ctx context.Context, locationName string) (*Dataset, error)
}

// Client 中央气象署开放资料客户端，结果写入 cache.Store
type Client struct {
	apiKey  string
	baseURL string
	ttl     time.Duration
	cache   cache.Store
	http    *resty.Client
	logger  *log.Logger
}

// NewClient 创建客户端；store 为 nil 时不缓存
func NewClient(cfg config.WeatherConfig, store cache.Store, logger *log.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://opendata.cwa.gov.tw/api/v1/rest/datastore"
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		ttl:     config.ParseDuration(cfg.CacheTTL, 10*time.Minute),
		cache:   store,
		http:    resty.New().SetTimeout(config.ParseDuration(cfg.Timeout, 10*time.Second)),
		logger:  logger.Component("weather"),
	}
}

// Forecast 查询地点预报；locationName 为空时返回全部地点
func (c *Client) Forecast(ctx context.Context, locationName string) (*Dataset, error) {
	if c.apiKey == "" {
		return nil, perrors.MissingCredential("CWA_API_KEY")
	}

	key := "weather:" + DatasetID + ":" + locationName
	if locationName == "" {
		key = "weather:" + DatasetID + ":all"
	}
	if c.cache != nil {
		var cached Dataset
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("Authorization", c.apiKey)
	if locationName != "" {
		req.SetQueryParam("locationName", locationName)
	}
	resp, err := req.Get(c.baseURL + "/" + DatasetID)
	if err != nil {
		return nil, fmt.Errorf("调用气象署 API 失败: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, perrors.Upstream("cwa", resp.StatusCode(), resp.String())
	}

	var ds Dataset
	if err := json.Unmarshal(resp.Body(), &ds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(ds.Locations()) == 0 {
		return nil, ErrParse
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, &ds, c.ttl); err != nil {
			c.logger.Warn("天气缓存写入失败", "key", key, "error", err)
		}
	}
	return &ds, nil
}
