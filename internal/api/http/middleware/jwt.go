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

package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/hertz-contrib/jwt"
)

// AdminIdentity 管理员身份标识（JWT claim 值）
const AdminIdentity = "admin"

const identityKey = "role"

// LoginRequest 管理员登录请求
type LoginRequest struct {
	Password string `json:"password"`
}

// NewJWTAuth 创建管理接口的 JWT 中间件：POST 登录换取 token，其余管理接口校验 Bearer token
func NewJWTAuth(key []byte, adminPassword string, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt key 为空")
	}
	if adminPassword == "" {
		return nil, errors.New("admin password 为空")
	}
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:         "perfume-assistant",
		Key:           key,
		Timeout:       timeout,
		MaxRefresh:    maxRefresh,
		IdentityKey:   identityKey,
		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if role, ok := data.(string); ok {
				return jwt.MapClaims{identityKey: role}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			return claims[identityKey]
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req LoginRequest
			if err := c.BindJSON(&req); err != nil || req.Password == "" {
				return nil, jwt.ErrMissingLoginValues
			}
			if subtle.ConstantTimeCompare([]byte(req.Password), []byte(adminPassword)) != 1 {
				return nil, jwt.ErrFailedAuthentication
			}
			return AdminIdentity, nil
		},
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			role, ok := data.(string)
			return ok && role == AdminIdentity
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, utils.H{"ok": false, "error": message})
		},
	})
}
