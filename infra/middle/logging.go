package middle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/gopos/infra/opensearch"
)

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	startTime  time.Time
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
		startTime:      time.Now(),
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// TransactionLoggingMiddleware creates a middleware for logging gateway requests/responses
func TransactionLoggingMiddleware(logger *opensearch.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip logging for non-payment endpoints
			if !isPaymentEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// Generate request ID
			requestID := uuid.New().String()
			r.Header.Set("X-Request-ID", requestID)

			// Extract bank from URL
			bank := extractBankFromURL(r.URL.Path)
			if bank == "" {
				bank = "unknown"
			}

			// Capture request body
			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			}

			// Create response writer wrapper
			rw := newResponseWriter(w)

			// Process request
			next.ServeHTTP(rw, r)

			txLog := opensearch.TransactionLog{
				Timestamp: rw.startTime,
				Bank:      bank,
				TxType:    extractTxTypeFromURL(r.URL.Path, r.Method),
				RequestID: requestID,
				ClientIP:  GetClientIP(r),
				Request: opensearch.RequestLog{
					Body: opensearch.SanitizeForLog(string(requestBody)),
				},
				Result: opensearch.ResultLog{
					ProcessingTimeMs: time.Since(rw.startTime).Milliseconds(),
				},
			}

			// Extract normalized outcome from the response body
			fillFromResponse(&txLog, rw.body.Bytes())

			// Log to OpenSearch asynchronously to avoid blocking the response
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				_ = logger.LogTransaction(ctx, txLog)
			}()
		})
	}
}

// isPaymentEndpoint checks if the URL path is a payment-related endpoint
func isPaymentEndpoint(path string) bool {
	paymentPaths := []string{
		"/v1/payments",
		"/v1/callback",
	}

	for _, paymentPath := range paymentPaths {
		if strings.HasPrefix(path, paymentPath) {
			return true
		}
	}

	return false
}

// extractBankFromURL extracts the bank name from the URL path
func extractBankFromURL(path string) string {
	// URL patterns:
	// /v1/payments/{bank}            -> extract bank
	// /v1/payments/{bank}/{action}   -> extract bank
	// /v1/callback/{bank}            -> extract bank

	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) >= 3 {
		switch segments[1] {
		case "payments", "callback":
			return segments[2]
		}
	}

	return ""
}

// extractTxTypeFromURL maps the URL action segment to a transaction type
func extractTxTypeFromURL(path, method string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) >= 2 && segments[1] == "callback" {
		return "3d-complete"
	}

	if len(segments) >= 4 {
		switch segments[3] {
		case "capture":
			return "post"
		case "cancel":
			return "cancel"
		case "refund":
			return "refund"
		case "status":
			return "status"
		case "history":
			return "history"
		}
	}

	if method == http.MethodPost {
		return "pay"
	}
	return strings.ToLower(method)
}

// fillFromResponse extracts the normalized gateway outcome from a handler response
func fillFromResponse(txLog *opensearch.TransactionLog, body []byte) {
	if len(body) == 0 {
		return
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data == nil {
		return
	}

	str := func(key string) string {
		if v, ok := envelope.Data[key].(string); ok {
			return v
		}
		return ""
	}

	txLog.OrderID = str("orderId")
	txLog.Result.Status = str("status")
	txLog.Result.ProcReturnCode = str("procReturnCode")
	txLog.Result.AuthCode = str("authCode")
	txLog.Result.HostRefNum = str("hostRefNum")
	txLog.Result.ErrorCode = str("errorCode")
	txLog.Result.ErrorMessage = str("errorMessage")
}
