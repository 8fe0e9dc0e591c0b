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

import (
	"regexp"
	"sort"
	"strings"
)

// City 城市：Name 为显示用简称，Location 为气象署资料中的地名
type City struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// 地区名
const (
	RegionNorth   = "北部"
	RegionCentral = "中部"
	RegionSouth   = "南部"
	RegionEast    = "東部"
	RegionAll     = "全台"
)

type cityEntry struct {
	city    City
	aliases []string
}

var cityTable = []cityEntry{
	{City{"台北", "臺北市"}, []string{"台北", "臺北", "台北市", "臺北市"}},
	{City{"新北", "新北市"}, []string{"新北", "新北市"}},
	{City{"基隆", "基隆市"}, []string{"基隆", "基隆市"}},
	{City{"桃園", "桃園市"}, []string{"桃園", "桃園市"}},
	{City{"新竹", "新竹市"}, []string{"新竹", "新竹市"}},
	{City{"新竹縣", "新竹縣"}, []string{"新竹縣"}},
	{City{"苗栗", "苗栗縣"}, []string{"苗栗", "苗栗縣"}},
	{City{"台中", "臺中市"}, []string{"台中", "臺中", "台中市", "臺中市"}},
	{City{"彰化", "彰化縣"}, []string{"彰化", "彰化縣"}},
	{City{"南投", "南投縣"}, []string{"南投", "南投縣"}},
	{City{"雲林", "雲林縣"}, []string{"雲林", "雲林縣"}},
	{City{"嘉義", "嘉義縣"}, []string{"嘉義", "嘉義縣"}},
	{City{"嘉義市", "嘉義市"}, []string{"嘉義市"}},
	{City{"台南", "臺南市"}, []string{"台南", "臺南", "台南市", "臺南市"}},
	{City{"高雄", "高雄市"}, []string{"高雄", "高雄市"}},
	{City{"屏東", "屏東縣"}, []string{"屏東", "屏東縣"}},
	{City{"宜蘭", "宜蘭縣"}, []string{"宜蘭", "宜蘭縣"}},
	{City{"花蓮", "花蓮縣"}, []string{"花蓮", "花蓮縣"}},
	{City{"台東", "臺東縣"}, []string{"台東", "臺東", "台東縣", "臺東縣", "台東市", "臺東市"}},
}

type cityAlias struct {
	alias string
	city  City
}

// cityAliases 按别名长度降序，保证最长匹配优先
var cityAliases []cityAlias

// RegionLocations 地区到气象署地名
var RegionLocations = map[string][]string{
	RegionNorth:   {"臺北市", "新北市", "基隆市", "桃園市", "新竹市", "新竹縣", "宜蘭縣"},
	RegionCentral: {"苗栗縣", "臺中市", "彰化縣", "南投縣", "雲林縣"},
	RegionSouth:   {"嘉義市", "嘉義縣", "臺南市", "高雄市", "屏東縣"},
	RegionEast:    {"花蓮縣", "臺東縣"},
}

var weatherRules RuleSet

var cancelRe = regexp.MustCompile(`沒有|不用|不需要|不用了|算了|取消`)

func init() {
	for _, e := range cityTable {
		for _, a := range e.aliases {
			cityAliases = append(cityAliases, cityAlias{alias: a, city: e.city})
		}
	}
	sort.SliceStable(cityAliases, func(i, j int) bool {
		return len([]rune(cityAliases[i].alias)) > len([]rune(cityAliases[j].alias))
	})

	var all []string
	for _, r := range []string{RegionNorth, RegionCentral, RegionSouth, RegionEast} {
		all = append(all, RegionLocations[r]...)
	}
	RegionLocations[RegionAll] = all

	names := make([]string, 0, len(cityAliases))
	for _, a := range cityAliases {
		names = append(names, regexp.QuoteMeta(a.alias))
	}
	cities := "(" + strings.Join(names, "|") + ")"
	regions := "(北部|中部|南部|東部|全台)"

	weatherRules = RuleSet{
		Exclusions: compileAll(
			`(很|非常|超|太).*(機車|煩|討厭|不爽)`,
			`(原本|剛才|剛剛).*(但|可是|不過)`,
		),
		Rules: rules(Weather,
			`(查|看|問|想知道|了解).*天氣`,
			`天氣.*(如何|怎樣|怎麼樣|好嗎)`,
			`(今天|明天|後天|這週|下週).*天氣`,
			cities+`.*天氣`,
			`天氣.*`+cities,
			regions+`.*天氣`,
			`天氣.*`+regions,
			`(會|要|可能).*下雨`,
			`降雨機率`,
			`氣溫.*(多少|幾度)`,
		),
	}
}

// IsWeatherQuery 明确的天气查询；抱怨或叙述语气不算
func IsWeatherQuery(text string) bool {
	_, ok := weatherRules.Match(text)
	return ok
}

// ExtractCity 最长别名优先
func ExtractCity(text string) (City, bool) {
	for _, a := range cityAliases {
		if strings.Contains(text, a.alias) {
			return a.city, true
		}
	}
	return City{}, false
}

// ExtractRegion 方位字推断地区；能识别出城市时不返回地区
func ExtractRegion(text string) (string, bool) {
	if _, ok := ExtractCity(text); ok {
		return "", false
	}
	switch {
	case strings.Contains(text, "北"):
		return RegionNorth, true
	case strings.Contains(text, "中"):
		return RegionCentral, true
	case strings.Contains(text, "南"):
		return RegionSouth, true
	case strings.Contains(text, "東"):
		return RegionEast, true
	case strings.Contains(text, "全"):
		return RegionAll, true
	}
	return "", false
}

// IsCancellation 用户放弃当前槽位
func IsCancellation(text string) bool {
	return cancelRe.MatchString(text)
}

// CityNames 可选城市简称（用于城市卡片）
func CityNames() []string {
	out := make([]string, 0, len(cityTable))
	for _, e := range cityTable {
		out = append(out, e.city.Name)
	}
	return out
}
