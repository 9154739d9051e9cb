package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

// ContextKeyAnalyzeRequest is where ValidateAnalyzeRequest stores the parsed
// payload for the handler.
const ContextKeyAnalyzeRequest = "analyze_request"

// SecurityConfig bounds request size, rate and lifetime.
type SecurityConfig struct {
	MaxContractSize   int           `json:"max_contract_size"`
	MaxRequestsPerMin int           `json:"max_requests_per_min"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	RequestTimeout    time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns conservative limits for local deployments.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxContractSize:   1 << 20, // 1MB of source is far beyond any deployable contract
		MaxRequestsPerMin: 60,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		TrustedProxies:    []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:    30 * time.Second,
	}
}

// SecurityMiddleware bundles the request guards applied to every route.
type SecurityMiddleware struct {
	config SecurityConfig

	mu         sync.Mutex
	ipLimiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSecurityMiddleware returns a middleware set using config.
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:     config,
		ipLimiters: make(map[string]*ipLimiter),
	}
}

// ValidateContractSource checks a submitted contract body. Solidity source
// is passed through verbatim to the feature extractor, so validation stops
// at size and encoding; no pattern rejection, comments legitimately contain
// things that look like injection attempts.
func (sm *SecurityMiddleware) ValidateContractSource(source string) error {
	if source == "" {
		return fmt.Errorf("contract source is required")
	}
	if len(source) > sm.config.MaxContractSize {
		return fmt.Errorf("contract source exceeds maximum size of %d bytes", sm.config.MaxContractSize)
	}
	if strings.Contains(source, "\x00") {
		return fmt.Errorf("contract source contains null bytes")
	}
	if !utf8.ValidString(source) {
		return fmt.Errorf("contract source contains invalid UTF-8 encoding")
	}
	return nil
}

// RateLimitByIP applies a token bucket per client address.
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()

	sm.mu.Lock()
	entry, exists := sm.ipLimiters[clientIP]
	if !exists {
		rps := rate.Limit(float64(sm.config.MaxRequestsPerMin) / 60.0)
		// Burst of half the per-minute budget, never below 5
		burst := sm.config.MaxRequestsPerMin / 2
		if burst < 5 {
			burst = 5
		}
		entry = &ipLimiter{limiter: rate.NewLimiter(rps, burst)}
		sm.ipLimiters[clientIP] = entry
	}
	entry.lastSeen = time.Now()
	limiter := entry.limiter
	sm.mu.Unlock()

	if !limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded for IP",
			"retry_after": "60", // seconds
		})
		c.Abort()
		return
	}

	c.Next()
}

// SecurityHeaders adds security headers to responses. The CSP allows inline
// script and style for the bundled swagger UI; everything else stays same-origin.
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("X-XSS-Protection", "1; mode=block")

	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	c.Next()
}

// ValidateContentType rejects non-JSON bodies on mutating methods
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
		contentType := c.GetHeader("Content-Type")
		if contentType != "" && !strings.Contains(strings.ToLower(contentType), "application/json") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// RequestTimeout caps how long a request may run. Handlers that respect
// the request context abort when the deadline passes.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// ValidateAnalyzeRequest parses and validates the analyze payload, storing
// the parsed request in the context for the handler.
func (sm *SecurityMiddleware) ValidateAnalyzeRequest(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "sourceCode field is required",
		})
		c.Abort()
		return
	}

	if err := sm.ValidateContractSource(req.SourceCode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("contract validation failed: %v", err),
		})
		c.Abort()
		return
	}

	c.Set(ContextKeyAnalyzeRequest, req)
	c.Next()
}

// Cleanup periodically drops rate limiters for IPs not seen in the last
// hour, bounding memory under IP churn.
func (sm *SecurityMiddleware) Cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for range ticker.C {
			sm.cleanupOldLimiters()
		}
	}()
}

func (sm *SecurityMiddleware) cleanupOldLimiters() {
	cutoff := time.Now().Add(-1 * time.Hour)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ip, entry := range sm.ipLimiters {
		if entry.lastSeen.Before(cutoff) {
			delete(sm.ipLimiters, ip)
		}
	}
}
