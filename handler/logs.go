package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/infra/response"
)

// LoggerInterface defines the interface for log query operations
type LoggerInterface interface {
	SearchLogs(ctx context.Context, bank string, query map[string]any) ([]opensearch.TransactionLog, error)
	GetOrderLogs(ctx context.Context, bank, orderID string) ([]opensearch.TransactionLog, error)
	GetRecentErrorLogs(ctx context.Context, bank string, hours int) ([]opensearch.TransactionLog, error)
	GetBankStats(ctx context.Context, bank string, hours int) (map[string]any, error)
}

// LogsHandler handles transaction log queries
type LogsHandler struct {
	logger LoggerInterface
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(logger LoggerInterface) *LogsHandler {
	return &LogsHandler{
		logger: logger,
	}
}

// ListLogs lists transaction logs for a bank with optional filters
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	bank := chi.URLParam(r, "bank")
	if bank == "" {
		response.Error(w, http.StatusBadRequest, "Bank parameter is required", nil)
		return
	}

	if h.logger == nil {
		response.Error(w, http.StatusServiceUnavailable, "Transaction logging is not enabled", nil)
		return
	}

	// Order ID filter short-circuits the generic query
	if orderID := r.URL.Query().Get("orderId"); orderID != "" {
		logs, err := h.logger.GetOrderLogs(ctx, bank, orderID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "Failed to search logs", err)
			return
		}
		response.Success(w, http.StatusOK, "Logs retrieved", map[string]any{
			"bank":  bank,
			"count": len(logs),
			"logs":  logs,
		})
		return
	}

	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 168 {
			hours = parsed
		}
	}

	if errorsOnly := r.URL.Query().Get("errorsOnly"); errorsOnly == "true" {
		logs, err := h.logger.GetRecentErrorLogs(ctx, bank, hours)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "Failed to search logs", err)
			return
		}
		response.Success(w, http.StatusOK, "Error logs retrieved", map[string]any{
			"bank":  bank,
			"count": len(logs),
			"logs":  logs,
		})
		return
	}

	query := map[string]any{
		"range": map[string]any{
			"timestamp": map[string]any{
				"gte": fmt.Sprintf("now-%dh", hours),
			},
		},
	}

	if status := r.URL.Query().Get("status"); status != "" {
		query = map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					query,
					{
						"match": map[string]any{
							"result.status": status,
						},
					},
				},
			},
		}
	}

	logs, err := h.logger.SearchLogs(ctx, bank, query)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to search logs", err)
		return
	}

	response.Success(w, http.StatusOK, "Logs retrieved", map[string]any{
		"bank":  bank,
		"count": len(logs),
		"logs":  logs,
	})
}

// GetBankStats returns aggregated transaction statistics for a bank
func (h *LogsHandler) GetBankStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	bank := chi.URLParam(r, "bank")
	if bank == "" {
		response.Error(w, http.StatusBadRequest, "Bank parameter is required", nil)
		return
	}

	if h.logger == nil {
		response.Error(w, http.StatusServiceUnavailable, "Transaction logging is not enabled", nil)
		return
	}

	hours := 24
	if hoursStr := r.URL.Query().Get("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 168 {
			hours = parsed
		}
	}

	stats, err := h.logger.GetBankStats(ctx, bank, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}

	response.Success(w, http.StatusOK, "Statistics retrieved", map[string]any{
		"bank":  bank,
		"hours": hours,
		"stats": stats,
	})
}
