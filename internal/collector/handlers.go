package collector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stellarlinkco/evalsight-go/internal/runstore"
)

type gridsRequest struct {
	TestExternalID   string           `json:"testExternalId" binding:"required"`
	GridSearchParams map[string][]any `json:"gridSearchParams" binding:"required"`
}

type startRequest struct {
	TestExternalID        string         `json:"testExternalId" binding:"required"`
	GridSearchRunGroupID  string         `json:"gridSearchRunGroupId"`
	GridSearchParamsCombo map[string]any `json:"gridSearchParamsCombo"`
}

type resultRequest struct {
	TestExternalID     string          `json:"testExternalId" binding:"required"`
	RunID              string          `json:"runId" binding:"required"`
	TestCaseHash       string          `json:"testCaseHash" binding:"required"`
	TestCaseBody       json.RawMessage `json:"testCaseBody"`
	TestCaseOutput     json.RawMessage `json:"testCaseOutput"`
	TestCaseDurationMs float64         `json:"testCaseDurationMs"`
}

type evalRequest struct {
	TestExternalID      string          `json:"testExternalId" binding:"required"`
	RunID               string          `json:"runId" binding:"required"`
	TestCaseHash        string          `json:"testCaseHash" binding:"required"`
	EvaluatorExternalID string          `json:"evaluatorExternalId" binding:"required"`
	Score               float64         `json:"score"`
	Threshold           json.RawMessage `json:"threshold"`
	Metadata            json.RawMessage `json:"metadata"`
	Assertions          json.RawMessage `json:"assertions"`
}

type errorRequest struct {
	TestExternalID      string `json:"testExternalId" binding:"required"`
	RunID               string `json:"runId" binding:"required"`
	TestCaseHash        string `json:"testCaseHash"`
	EvaluatorExternalID string `json:"evaluatorExternalId"`
	Error               struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		Stacktrace string `json:"stacktrace"`
	} `json:"error"`
}

type endRequest struct {
	TestExternalID string `json:"testExternalId" binding:"required"`
	RunID          string `json:"runId" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGrids(c *gin.Context) {
	var req gridsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	group := &runstore.GridGroupRecord{
		ID:             uuid.NewString(),
		TestExternalID: req.TestExternalID,
		Params:         req.GridSearchParams,
	}
	if err := s.store.CreateGridGroup(c.Request.Context(), group); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": group.ID})
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	run := &runstore.RunRecord{
		ID:             uuid.NewString(),
		TestExternalID: req.TestExternalID,
		GridGroupID:    req.GridSearchRunGroupID,
		GridCombo:      req.GridSearchParamsCombo,
		StartedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateRun(c.Request.Context(), run); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": run.ID})
}

func (s *Server) handleResult(c *gin.Context) {
	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	record := &runstore.ResultRecord{
		ID:           uuid.NewString(),
		RunID:        req.RunID,
		TestCaseHash: req.TestCaseHash,
		Body:         req.TestCaseBody,
		Output:       req.TestCaseOutput,
		DurationMs:   req.TestCaseDurationMs,
	}
	if err := s.store.SaveResult(c.Request.Context(), record); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": record.ID})
}

func (s *Server) handleEval(c *gin.Context) {
	var req evalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	record := &runstore.EvalRecord{
		ID:                  uuid.NewString(),
		RunID:               req.RunID,
		TestCaseHash:        req.TestCaseHash,
		EvaluatorExternalID: req.EvaluatorExternalID,
		Score:               req.Score,
		Threshold:           req.Threshold,
		Metadata:            req.Metadata,
		Assertions:          req.Assertions,
	}
	if err := s.store.SaveEvaluation(c.Request.Context(), record); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": record.ID})
}

func (s *Server) handleError(c *gin.Context) {
	var req errorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	record := &runstore.ErrorRecord{
		ID:                  uuid.NewString(),
		RunID:               req.RunID,
		TestCaseHash:        req.TestCaseHash,
		EvaluatorExternalID: req.EvaluatorExternalID,
		Name:                req.Error.Name,
		Message:             req.Error.Message,
		Stacktrace:          req.Error.Stacktrace,
	}
	if err := s.store.SaveError(c.Request.Context(), record); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": record.ID})
}

func (s *Server) handleEnd(c *gin.Context) {
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.store.EndRun(c.Request.Context(), req.RunID, time.Now().UTC()); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	s.logRunSummary(c.Request.Context(), req.TestExternalID, req.RunID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
