package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompressedRouter(cm *CompressionMiddleware, payload string, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/data", func(c *gin.Context) {
		c.Data(status, "application/json", []byte(payload))
	})
	return r
}

func TestCompressionLargeJSONResponse(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	payload := `{"padding":"` + strings.Repeat("a", 4096) + `"}`
	router := newCompressedRouter(cm, payload, http.StatusOK)

	req := httptest.NewRequest("GET", "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Less(t, w.Body.Len(), len(payload))

	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))
}

func TestCompressionSkipsSmallResponses(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	router := newCompressedRouter(cm, `{"ok":true}`, http.StatusOK)

	req := httptest.NewRequest("GET", "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, `{"ok":true}`, w.Body.String())
}

func TestCompressionSkipsWithoutAcceptEncoding(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	payload := strings.Repeat("x", 4096)
	router := newCompressedRouter(cm, payload, http.StatusOK)

	req := httptest.NewRequest("GET", "/data", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, w.Body.String())
}

func TestCompressionPreservesErrorStatus(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	router := newCompressedRouter(cm, `{"error":"nope"}`, http.StatusBadRequest)

	req := httptest.NewRequest("GET", "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "nope")
}

func TestCompressionStatsAccumulate(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	payload := strings.Repeat("b", 2048)
	router := newCompressedRouter(cm, payload, http.StatusOK)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/data", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	stats := cm.GetStats()
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(3), stats["compressed_requests"])
	assert.Greater(t, stats["total_bytes"].(int64), stats["compressed_bytes"].(int64))
}
