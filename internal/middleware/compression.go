package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig controls when responses are gzipped.
type CompressionConfig struct {
	MinSize          int      // Responses below this many bytes go out uncompressed
	CompressionLevel int      // Gzip level, 1 to 9
	ContentTypes     []string // Content types eligible for compression
}

// DefaultCompressionConfig compresses JSON and text bodies over 1KB.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: 6,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses.
// Responses are buffered so the size threshold can be applied before any
// headers go out; analysis reports are small enough that buffering is cheap.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool // reused gzip writers
}

// NewCompressionMiddleware builds the middleware and its writer pool.
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	return &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
				return gz
			},
		},
	}
}

// Handler returns a Gin middleware that compresses eligible responses
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.clientAcceptsGzip(c) {
			c.Next()
			return
		}

		buf := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = buf
		c.Next()
		c.Writer = buf.ResponseWriter

		cm.flush(buf)
	}
}

// flush writes the buffered response, gzipping it when it clears the size
// threshold and carries a compressible content type.
func (cm *CompressionMiddleware) flush(buf *bufferedWriter) {
	w := buf.ResponseWriter
	body := buf.body.Bytes()
	status := buf.status
	if status == 0 {
		status = w.Status()
	}

	contentType := w.Header().Get("Content-Type")
	if len(body) < cm.config.MinSize || !cm.shouldCompress(contentType) {
		w.WriteHeader(status)
		if len(body) > 0 {
			w.Write(body)
		}
		cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
		return
	}

	var compressed bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&compressed)
	gz.Write(body)
	gz.Close()
	cm.pool.Put(gz)

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	w.Write(compressed.Bytes())

	cm.stats.RecordRequest(int64(len(body)), int64(compressed.Len()), true)
}

func (cm *CompressionMiddleware) clientAcceptsGzip(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept-Encoding"), "gzip")
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// bufferedWriter captures the response body and defers the header write
// until the compression decision is made.
type bufferedWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) WriteHeader(statusCode int) {
	w.status = statusCode
}

// WriteHeaderNow is a no-op; the real header write happens at flush time.
func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Status() int {
	if w.status != 0 {
		return w.status
	}
	return w.ResponseWriter.Status()
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.status != 0 || w.body.Len() > 0
}

// CompressionStats counts requests and bytes through the middleware
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records one response and whether it was compressed
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats reports totals and the realized compression ratio.
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
	}
}

// GetStats exposes the collector for the stats endpoint.
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
