package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/ingestion"
	"github.com/rohankatakam/repograph/internal/storage"
)

// Ingester runs one ingestion. *ingestion.Coordinator implements it.
type Ingester interface {
	Run(ctx context.Context, repoURL string) (*ingestion.Result, error)
}

// RunLister lists ledger runs. *storage.Ledger implements it.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]storage.Run, error)
}

// IngestRequest is the body of POST /ingest
type IngestRequest struct {
	URL string `json:"url" binding:"required"`
}

// Response is the success envelope
type Response struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the error envelope
type ErrorResponse struct {
	Status string    `json:"status"`
	Error  ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type handler struct {
	ingester Ingester
	runs     RunLister
	logger   *logrus.Logger

	// one ingestion at a time
	mu sync.Mutex
}

func newHandler(ingester Ingester, runs RunLister, logger *logrus.Logger) *handler {
	return &handler{ingester: ingester, runs: runs, logger: logger}
}

func (h *handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		details := "url is required"
		if err != nil {
			details = err.Error()
		}
		writeError(c, http.StatusBadRequest, "Invalid request body", details)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.ingester.Run(c.Request.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		h.logger.WithError(err).WithField("url", req.URL).Warn("Ingestion request failed")
		status := statusOf(err)
		if status == http.StatusTooManyRequests {
			if wait := errors.RetryAfterOf(err); wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
		}
		writeError(c, status, "Ingestion failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, Response{
		Status:  "success",
		Code:    http.StatusOK,
		Message: result.Message,
		Data:    result,
	})
}

func (h *handler) Runs(c *gin.Context) {
	if h.runs == nil {
		writeError(c, http.StatusNotFound, "Run ledger is not configured", "")
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "Invalid limit", v)
			return
		}
		limit = n
	}

	runs, err := h.runs.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list runs", err.Error())
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Code: http.StatusOK, Message: "ok", Data: runs})
}

// statusOf maps the error taxonomy onto HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.IsType(err, errors.ErrorTypeStoreBinding):
		return http.StatusConflict
	case errors.IsType(err, errors.ErrorTypeConfig):
		return http.StatusBadRequest
	case errors.IsType(err, errors.ErrorTypeCollection) && errors.RetryAfterOf(err) > 0:
		return http.StatusTooManyRequests
	case errors.IsType(err, errors.ErrorTypeCollection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, message, details string) {
	c.JSON(status, ErrorResponse{
		Status: "error",
		Error:  ErrorBody{Code: status, Message: message, Details: details},
	})
}
