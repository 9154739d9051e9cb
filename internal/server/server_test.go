package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/analysis"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/auth"
)

const sampleContract = `pragma solidity ^0.8.0;

contract Vault {
    mapping(address => uint256) private balances;

    function deposit() public payable {
        balances[msg.sender] += msg.value;
    }

    function withdraw(uint256 amount) public {
        require(balances[msg.sender] >= amount, "insufficient balance");
        balances[msg.sender] -= amount;
        payable(msg.sender).transfer(amount);
    }
}
`

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := Config{
		Port:          "0",
		ModelPath:     filepath.Join(dir, "model.bin"),
		DBPath:        filepath.Join(dir, "history.db"),
		LogLevel:      "error",
		GinMode:       gin.TestMode,
		CacheTTL:      time.Minute,
		RateLimitRPM:  1000,
		TrainLimitRPM: 1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func postJSON(r http.Handler, path string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, r http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var response map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w.Code, response
}

func trainingContracts(n int) []map[string]interface{} {
	contracts := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		contracts[i] = map[string]interface{}{
			"code": fmt.Sprintf("pragma solidity ^0.8.0;\ncontract C%d {\n    uint256 value;\n    function set(uint256 v) public { value = v + %d; }\n}\n", i, i),
			"name": fmt.Sprintf("C%d", i),
		}
	}
	return contracts
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	code, response := getJSON(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", response["status"])
	assert.Equal(t, true, response["model_loaded"])
	assert.Equal(t, Version, response["version"])
	assert.NotEmpty(t, response["timestamp"])

	// Only GET is routed
	w := postJSON(r, "/health", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeEndpoint_ValidRequest(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	w := postJSON(r, "/api/analyze", map[string]interface{}{
		"sourceCode": sampleContract,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.NotEmpty(t, response["id"])
	assert.Contains(t, response, "is_anomaly")
	assert.Contains(t, response, "anomaly_score")
	assert.Contains(t, response, "threshold")
	assert.Contains(t, response, "summary")
	assert.Contains(t, response, "recommendation")
	assert.NotEmpty(t, response["analyzed_at"])

	// The bootstrap model scores everything as normal
	assert.Equal(t, false, response["is_anomaly"])
	assert.Equal(t, "Low", response["risk_level"])
	assert.Equal(t, false, response["degraded"])

	features, ok := response["features"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, features, "num_functions")
	assert.Contains(t, features, "num_payable")

	score := response["anomaly_score"].(float64)
	assert.GreaterOrEqual(t, score, -1.0)
	assert.LessOrEqual(t, score, 0.0)
}

func TestAnalyzeEndpoint_InvalidRequests(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	tests := []struct {
		name           string
		payload        map[string]interface{}
		expectedStatus int
	}{
		{
			name:           "missing sourceCode",
			payload:        map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty sourceCode",
			payload:        map[string]interface{}{"sourceCode": ""},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, "/api/analyze", tt.payload, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestAnalyzeEndpoint_NoModelLoaded(t *testing.T) {
	s := newTestServer(t, nil)
	s.analyzer = analysis.NewAnalyzer(nil)
	r := s.Router()

	w := postJSON(r, "/api/analyze", map[string]interface{}{
		"sourceCode": sampleContract,
	}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAnalyzeEndpoint_DegradedWithBytecode(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	// The bootstrap model was fitted without bytecode features, so a
	// bytecode-bearing request falls back to the raw-value path.
	w := postJSON(r, "/api/analyze", map[string]interface{}{
		"sourceCode": sampleContract,
		"bytecode":   "0x6080604052348015600f57600080fd5b50",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["degraded"])
}

func TestAnalyzeEndpoint_CachedResponse(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	payload := map[string]interface{}{"sourceCode": sampleContract}

	first := postJSON(r, "/api/analyze", payload, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(r, "/api/analyze", payload, nil)
	require.Equal(t, http.StatusOK, second.Code)

	// A cache hit replays the stored body, so the analysis ID is identical
	var firstResponse, secondResponse map[string]interface{}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResponse))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResponse))
	assert.Equal(t, firstResponse["id"], secondResponse["id"])
}

func TestTrainEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	require.NoError(t, os.Remove(s.config.ModelPath))

	w := postJSON(r, "/api/train", map[string]interface{}{
		"contracts": trainingContracts(8),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "success", response["status"])
	assert.Equal(t, "Model trained successfully", response["message"])

	model, ok := response["model"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, model["loaded"])
	assert.Equal(t, float64(8), model["corpus_size"])
	assert.Equal(t, "v1", model["schema_version"])

	// Model persisted after the swap
	_, err := os.Stat(s.config.ModelPath)
	assert.NoError(t, err)
}

func TestTrainEndpoint_InvalidCorpus(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{
			name:    "missing contracts",
			payload: map[string]interface{}{},
		},
		{
			name:    "empty contracts",
			payload: map[string]interface{}{"contracts": []map[string]interface{}{}},
		},
		{
			name: "record without code",
			payload: map[string]interface{}{
				"contracts": []map[string]interface{}{{"bytecode": "0x00"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, "/api/train", tt.payload, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestTrainEndpoint_RequiresToken(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.AuthSecret = "test-signing-secret"
	})
	r := s.Router()

	payload := map[string]interface{}{"contracts": trainingContracts(4)}

	w := postJSON(r, "/api/train", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/train", payload, map[string]string{
		"Authorization": "Bearer not-a-real-token",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.NewTokenService("test-signing-secret").Mint("ci", time.Hour)
	require.NoError(t, err)

	w = postJSON(r, "/api/train", payload, map[string]string{
		"Authorization": "Bearer " + token,
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAnalysesEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	w := postJSON(r, "/api/analyze", map[string]interface{}{
		"sourceCode": sampleContract,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// History writes are asynchronous
	assert.Eventually(t, func() bool {
		code, response := getJSON(t, r, "/api/analyses")
		if code != http.StatusOK {
			return false
		}
		total, ok := response["total"].(float64)
		return ok && total >= 1
	}, 2*time.Second, 50*time.Millisecond)

	code, response := getJSON(t, r, "/api/analyses?limit=5")
	require.Equal(t, http.StatusOK, code)

	records, ok := response["analyses"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, records)

	record := records[0].(map[string]interface{})
	assert.NotEmpty(t, record["id"])
	assert.NotEmpty(t, record["contract_hash"])
	assert.Equal(t, "Low", record["risk"])
}

func TestAnalysesEndpoint_InvalidLimit(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	for _, limit := range []string{"0", "-3", "abc"} {
		code, _ := getJSON(t, r, "/api/analyses?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, code, "limit=%s", limit)
	}
}

func TestModelEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	code, response := getJSON(t, r, "/api/model")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, true, response["loaded"])
	assert.Equal(t, "v1", response["schema_version"])
	assert.Equal(t, float64(1), response["corpus_size"])
	assert.NotEmpty(t, response["trained_at"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	getJSON(t, r, "/health")

	code, response := getJSON(t, r, "/metrics")
	require.Equal(t, http.StatusOK, code)

	total, ok := response["total_requests"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, total, float64(1))

	assert.Contains(t, response, "cache")
	assert.Contains(t, response, "memory")
	assert.Contains(t, response, "compression")
	assert.Contains(t, response, "uptime_seconds")
}

func TestServiceHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	code, response := getJSON(t, r, "/health/services")
	require.Equal(t, http.StatusOK, code)

	services, ok := response["services"].(map[string]interface{})
	require.True(t, ok)

	model, ok := services["model"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, model["loaded"])

	redis, ok := services["redis"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "disabled", redis["status"])

	assert.Contains(t, response, "circuit_breakers")
	assert.Contains(t, response, "active_alerts")
	assert.NotEmpty(t, response["timestamp"])
}

func TestSecurityHeadersApplied(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestContentTypeValidation(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.Router()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader([]byte("sourceCode=x")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "5002", cfg.Port)
	assert.Equal(t, "models/anomaly_model.bin", cfg.ModelPath)
	assert.Equal(t, "data/detector.db", cfg.DBPath)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 60, cfg.RateLimitRPM)
	assert.Equal(t, 5, cfg.TrainLimitRPM)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9099")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_RPM", "120")
	t.Setenv("ALLOWED_ORIGINS", "https://one.example, https://two.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadConfig()

	assert.Equal(t, "9099", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 120, cfg.RateLimitRPM)
	assert.Equal(t, []string{"https://one.example", "https://two.example"}, cfg.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}
