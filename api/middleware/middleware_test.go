/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/canopyfield/canopy/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, "ok") })
	r.GET("/inspections", func(c *gin.Context) { c.JSON(http.StatusOK, "ok") })
	return r
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	config.MockConfig(&config.Configuration{Server: config.ServerConfig{Secure: true, SecretKey: "s3cret"}})
	router := newRouter(SecretKeyAuthMiddleware())

	tests := []struct {
		name         string
		path         string
		key          string
		expectedCode int
	}{
		{name: "Health check is open", path: "/", expectedCode: http.StatusOK},
		{name: "Missing key", path: "/inspections", expectedCode: http.StatusUnauthorized},
		{name: "Wrong key", path: "/inspections", key: "nope", expectedCode: http.StatusUnauthorized},
		{name: "Valid key", path: "/inspections", key: "s3cret", expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(KeyHeader, tt.key)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestSecretKeyAuthMiddleware_NoKeyConfigured(t *testing.T) {
	config.MockConfig(&config.Configuration{Server: config.ServerConfig{Secure: true}})
	router := newRouter(SecretKeyAuthMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/inspections", nil)
	req.Header.Set(KeyHeader, "anything")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	rps := 1.0
	burst := 1
	cleanup := 60
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond:  &rps,
		Burst:              &burst,
		CleanupIntervalSec: &cleanup,
	}}
	router := newRouter(RateLimitMiddleware(conf))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/inspections", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	router := newRouter(RateLimitMiddleware(&config.Configuration{}))
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/inspections", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
