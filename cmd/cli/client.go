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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("PERFUME_API_URL"); u != "" {
		return u
	}
	return "http://localhost:5050"
}

func newClient() *resty.Client {
	c := resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(90 * time.Second).
		SetHeader("Content-Type", "application/json")
	if tok := os.Getenv("PERFUME_TOKEN"); tok != "" {
		c.SetAuthToken(tok)
	}
	return c
}

// chatReply /api/chat 响应中 CLI 关心的字段
type chatReply struct {
	OK          bool     `json:"ok"`
	SessionID   string   `json:"sessionId"`
	Reply       string   `json:"reply"`
	Engine      string   `json:"engine"`
	Suggestions []string `json:"suggestions"`
	Error       string   `json:"error"`
}

func postChat(sessionID, message string) (*chatReply, error) {
	var out chatReply
	resp, err := newClient().R().
		SetBody(map[string]string{"message": message, "sessionId": sessionID}).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/chat: %d %s", resp.StatusCode(), out.Error)
	}
	return &out, nil
}

func login(password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	resp, err := newClient().R().
		SetBody(map[string]string{"password": password}).
		SetResult(&out).
		Post("/api/admin/login")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("POST /api/admin/login: %s", resp.String())
	}
	return out.Token, nil
}

func getJSON(path string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", path, resp.String())
	}
	return out, nil
}

func postJSON(path string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST %s: %s", path, resp.String())
	}
	return out, nil
}

func uploadFiles(paths []string) (map[string]interface{}, error) {
	var out map[string]interface{}
	req := newClient().R().SetResult(&out)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		req.SetFileReader("files", filepath.Base(p), f)
	}
	resp, err := req.Post("/api/upload")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /api/upload: %s", resp.String())
	}
	return out, nil
}

func prettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
