package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dinesh3456/smart-contract-auditing-system/internal/analysis"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/database"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/errors"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/monitoring"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/resilience"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/security"
	"github.com/dinesh3456/smart-contract-auditing-system/internal/types"
)

// handleAnalyze godoc
// @Summary Analyze a smart contract
// @Description Extracts features from Solidity source plus optional bytecode and ABI, scores them against the trained model, and returns the report with factor attributions and a recommendation.
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body types.AnalyzeRequest true "Contract to analyze"
// @Success 200 {object} analysis.AnalysisResult
// @Failure 400 {object} map[string]string "missing or oversized sourceCode"
// @Failure 503 {object} errors.AppError "no model loaded"
// @Router /api/analyze [post]
func (s *Server) handleAnalyze(c *gin.Context) {
	start := time.Now()

	value, exists := c.Get(security.ContextKeyAnalyzeRequest)
	if !exists {
		appErr := errors.NewInternalError("analyze request missing from context", nil)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	req := value.(types.AnalyzeRequest)

	result, err := s.analyzer.AnalyzeContract(c.Request.Context(), req.SourceCode, req.Bytecode, req.ABI)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	contractHash := hashContract(req.SourceCode)
	s.metrics.RecordAnalysis(result.IsAnomaly, result.Degraded)
	s.logger.AnalysisLogger(contractHash, result.AnomalyScore, result.IsAnomaly,
		result.RiskLevel.String(), result.Degraded, time.Since(start), false)

	record := database.NewAnalysisRecord(result.ID, contractHash, result.AnomalyScore,
		result.IsAnomaly, result.RiskLevel.String(), result.Degraded, factorKeys(result.AnomalyFactors))
	go func() {
		// The request context is gone by the time this insert runs.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.SaveAnalysis(ctx, record); err != nil {
			slog.Error("Failed to record analysis history", "error", err, "analysis_id", record.ID)
		}
	}()

	c.JSON(http.StatusOK, result)
}

// handleTrain godoc
// @Summary Retrain the anomaly model
// @Description Fits a fresh model on the submitted corpus, enriching records that carry an address with on-chain bytecode when an RPC endpoint is configured. The previous model keeps serving until the new one is published.
// @Tags training
// @Accept json
// @Produce json
// @Param request body types.TrainRequest true "Training corpus"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.AppError "empty corpus"
// @Failure 401 {object} map[string]string "missing or invalid token"
// @Security BearerAuth
// @Router /api/train [post]
func (s *Server) handleTrain(c *gin.Context) {
	var req types.TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.NewValidationError("contracts must be a non-empty array of records with code", err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	records := s.fetcher.Enrich(c.Request.Context(), req.Contracts)

	var info analysis.ModelInfo
	err := monitoring.TraceFunction(c.Request.Context(), s.tracer, "train_model", func(ctx context.Context) error {
		var trainErr error
		info, trainErr = s.analyzer.Train(ctx, records)
		return trainErr
	})
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	// Reports cached before the retrain describe the old model.
	s.cache.Clear()
	s.metrics.IncrementTraining()

	if err := s.analyzer.SaveModel(s.config.ModelPath); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Model trained successfully",
		"model":   info,
	})
}

// handleAnalyses godoc
// @Summary List recent analyses
// @Description Returns the most recent analysis records from history, newest first.
// @Tags analysis
// @Produce json
// @Param limit query int false "maximum records to return (default 20, cap 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.AppError
// @Router /api/analyses [get]
func (s *Server) handleAnalyses(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			appErr := errors.NewValidationError("limit must be a positive integer")
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	records, err := s.repo.RecentAnalyses(c.Request.Context(), limit)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	total, err := s.repo.CountAnalyses(c.Request.Context())
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses": records,
		"count":    len(records),
		"total":    total,
	})
}

// handleModel godoc
// @Summary Describe the current model
// @Tags training
// @Produce json
// @Success 200 {object} analysis.ModelInfo
// @Router /api/model [get]
func (s *Server) handleModel(c *gin.Context) {
	c.JSON(http.StatusOK, s.analyzer.ModelInfo())
}

// handleHealth godoc
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"model_loaded": s.analyzer.ModelInfo().Loaded,
		"version":      Version,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

// handleServiceHealth godoc
// @Summary Dependency health
// @Description Circuit breaker states, active alerts, and connection pool stats for every backing service.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/services [get]
func (s *Server) handleServiceHealth(c *gin.Context) {
	redisStatus := "disabled"
	if s.redis.IsEnabled() {
		redisStatus = "ok"
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			redisStatus = "unreachable"
		}
	}

	chainStatus := "disabled"
	if s.fetcher.IsEnabled() {
		chainStatus = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"services": gin.H{
			"model": gin.H{
				"loaded": s.analyzer.ModelInfo().Loaded,
			},
			"database": gin.H{
				"status": "ok",
				"pool":   s.db.GetPoolStats(),
			},
			"redis": gin.H{
				"status": redisStatus,
				"pool":   s.redis.GetPoolStats(),
			},
			"ethereum_rpc": gin.H{
				"status": chainStatus,
			},
		},
		"circuit_breakers": resilience.GetCircuitBreakerStats(),
		"active_alerts":    s.alerts.GetActiveAlerts(),
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

// handleMetrics godoc
// @Summary Monitoring snapshot
// @Description Request, analysis, cache, memory, and rate limiting counters since process start.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (s *Server) handleMetrics(c *gin.Context) {
	stats := s.metrics.GetStats()
	stats["cache"] = s.cache.Stats()
	stats["memory"] = s.memory.GetStats()
	stats["compression"] = s.compression.GetStats()
	stats["database_pool"] = s.db.GetPoolStats()
	stats["active_spans"] = s.tracer.GetSpanCount()
	c.JSON(http.StatusOK, stats)
}

func hashContract(source string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(source)))
}

func factorKeys(factors []analysis.AnomalyFactor) []string {
	keys := make([]string, len(factors))
	for i, factor := range factors {
		keys[i] = factor.Factor
	}
	return keys
}
