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

package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "default env", provider: "", wantErr: false},
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil || store == nil {
				t.Fatalf("unexpected: store=%v err=%v", store, err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Set("hf_token", "hf_abc")

	got, err := Resolve(ctx, m, "plain-value")
	if err != nil || got != "plain-value" {
		t.Errorf("plain value: got %q err %v", got, err)
	}
	got, err = Resolve(ctx, m, "secret://hf_token")
	if err != nil || got != "hf_abc" {
		t.Errorf("ref: got %q err %v", got, err)
	}
	if _, err := Resolve(ctx, m, "secret://missing"); err == nil {
		t.Error("missing ref should error")
	}
	if _, err := Resolve(ctx, nil, "secret://x"); err == nil {
		t.Error("nil store with ref should error")
	}
}

func TestEnvStore(t *testing.T) {
	t.Setenv("PERFUME_TEST_SECRET", "v1")
	s := NewEnvStore()
	got, err := s.Get(context.Background(), "PERFUME_TEST_SECRET")
	if err != nil || got != "v1" {
		t.Errorf("Get: %q %v", got, err)
	}
	if _, err := s.Get(context.Background(), "PERFUME_TEST_SECRET_MISSING"); err == nil {
		t.Error("unset variable should error")
	}
}

func TestVaultStore_KVv2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/perfume/openai" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": map[string]any{"value": "sk-test"}},
		})
	}))
	defer srv.Close()

	s, err := NewVaultStore(VaultConfig{Address: srv.URL, Token: "t", PathPrefix: "secret/data/perfume"})
	if err != nil {
		t.Fatalf("NewVaultStore: %v", err)
	}
	got, err := s.Get(context.Background(), "openai")
	if err != nil || got != "sk-test" {
		t.Errorf("Get: %q %v", got, err)
	}
}
