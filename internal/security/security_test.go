package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path, contentType, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDefaultSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	assert.Equal(t, 1<<20, config.MaxContractSize)
	assert.Equal(t, 60, config.MaxRequestsPerMin)
	assert.Contains(t, config.AllowedOrigins, "http://localhost:3000")
	assert.Contains(t, config.AllowedOrigins, "http://localhost:5173")
	assert.Contains(t, config.TrustedProxies, "127.0.0.1")
	assert.Equal(t, 30*time.Second, config.RequestTimeout)
}

func TestValidateContractSource(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{
			name:   "valid contract",
			source: "pragma solidity ^0.8.0; contract Vault { uint256 total; }",
		},
		{
			name:    "empty source",
			source:  "",
			wantErr: "contract source is required",
		},
		{
			name:    "oversized source",
			source:  strings.Repeat("a", 1<<20+1),
			wantErr: "exceeds maximum size",
		},
		{
			name:    "null bytes",
			source:  "contract C {\x00}",
			wantErr: "null bytes",
		},
		{
			name:    "invalid UTF-8",
			source:  "contract C {\xff\xfe}",
			wantErr: "invalid UTF-8 encoding",
		},
		{
			name:   "comment markers are not injection",
			source: "// SPDX-License-Identifier: MIT\n/* setup -- notes */ contract C {}",
		},
		{
			name:   "assembly and selectors pass through",
			source: "contract C { function f() public { assembly { selfdestruct(0) } } }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sm.ValidateContractSource(tt.source)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.SecurityHeaders)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	w := perform(r, "GET", "/ping", "", "")

	headers := w.Header()
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", headers.Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", headers.Get("Referrer-Policy"))
	assert.Contains(t, headers.Get("Content-Security-Policy"), "default-src 'self'")
}

func TestValidateContentType(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.ValidateContentType)
	r.POST("/submit", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "accepted"})
	})

	tests := []struct {
		name        string
		contentType string
		wantStatus  int
	}{
		{"plain JSON", "application/json", http.StatusOK},
		{"JSON with charset", "application/json; charset=utf-8", http.StatusOK},
		{"form data rejected", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"plain text rejected", "text/plain", http.StatusUnsupportedMediaType},
		{"missing content type tolerated", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(r, "POST", "/submit", tt.contentType, `{"test":"data"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestValidateAnalyzeRequest(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.POST("/analyze", sm.ValidateAnalyzeRequest, func(c *gin.Context) {
		val, _ := c.Get(ContextKeyAnalyzeRequest)
		req := val.(types.AnalyzeRequest)
		c.JSON(http.StatusOK, gin.H{"source_code": req.SourceCode})
	})

	oversized := `{"sourceCode":"` + strings.Repeat("a", 1<<20+1) + `"}`

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid payload", `{"sourceCode":"contract C { uint256 total; }"}`, http.StatusOK},
		{"empty source", `{"sourceCode":""}`, http.StatusBadRequest},
		{"oversized source", oversized, http.StatusBadRequest},
		{"wrong field name", `{"other":"field"}`, http.StatusBadRequest},
		{"malformed JSON", `not json at all`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(r, "POST", "/analyze", "application/json", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), "source_code")
			}
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	config := DefaultSecurityConfig()
	config.MaxRequestsPerMin = 10

	sm := NewSecurityMiddleware(config)

	r := gin.New()
	r.Use(sm.RateLimitByIP)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Token refill at 10/min is negligible across 8 back-to-back requests,
	// so exactly the burst capacity (half the budget) gets through.
	var allowed, blocked int
	for i := 0; i < 8; i++ {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		switch w.Code {
		case http.StatusOK:
			allowed++
		case http.StatusTooManyRequests:
			blocked++
			assert.Contains(t, w.Body.String(), "rate limit exceeded")
		default:
			t.Fatalf("unexpected status %d on request %d", w.Code, i+1)
		}
	}

	assert.Equal(t, 5, allowed)
	assert.Equal(t, 3, blocked)
}

func TestRateLimiterCleanup(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	sm.mu.Lock()
	sm.ipLimiters["10.0.0.1"] = &ipLimiter{lastSeen: time.Now().Add(-2 * time.Hour)}
	sm.ipLimiters["10.0.0.2"] = &ipLimiter{lastSeen: time.Now()}
	sm.mu.Unlock()

	sm.cleanupOldLimiters()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	assert.NotContains(t, sm.ipLimiters, "10.0.0.1")
	assert.Contains(t, sm.ipLimiters, "10.0.0.2")
}

func TestRequestTimeout(t *testing.T) {
	config := DefaultSecurityConfig()
	config.RequestTimeout = 5 * time.Millisecond

	sm := NewSecurityMiddleware(config)

	r := gin.New()
	r.Use(sm.RequestTimeout)
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
		case <-time.After(200 * time.Millisecond):
			c.JSON(http.StatusOK, gin.H{"message": "done"})
		}
	})

	w := perform(r, "GET", "/slow", "", "")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestSecurityMiddlewareStack(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())

	r := gin.New()
	r.Use(sm.SecurityHeaders)
	r.Use(sm.RequestTimeout)
	r.Use(sm.ValidateContentType)
	r.Use(sm.RateLimitByIP)
	r.POST("/analyze", sm.ValidateAnalyzeRequest, func(c *gin.Context) {
		val, _ := c.Get(ContextKeyAnalyzeRequest)
		req := val.(types.AnalyzeRequest)
		c.JSON(http.StatusOK, gin.H{"source_code": req.SourceCode, "status": "processed"})
	})

	w := perform(r, "POST", "/analyze", "application/json",
		`{"sourceCode":"pragma solidity ^0.8.0; contract Vault {}"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "pragma solidity ^0.8.0; contract Vault {}", response["source_code"])
	assert.Equal(t, "processed", response["status"])

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "30", w.Header().Get("X-Timeout"))
}
