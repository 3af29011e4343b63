package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// TransactionLog represents a structured gateway transaction log entry
type TransactionLog struct {
	Timestamp time.Time  `json:"timestamp"`
	Bank      string     `json:"bank"`
	TxType    string     `json:"tx_type"`
	OrderID   string     `json:"order_id"`
	RequestID string     `json:"request_id"`
	ClientIP  string     `json:"client_ip,omitempty"`
	Request   RequestLog `json:"request"`
	Result    ResultLog  `json:"result"`
	Order     OrderInfo  `json:"order,omitempty"`
}

// RequestLog represents request details
type RequestLog struct {
	Body   string            `json:"body,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// ResultLog represents the normalized gateway outcome
type ResultLog struct {
	Status           string `json:"status,omitempty"`
	ProcReturnCode   string `json:"proc_return_code,omitempty"`
	AuthCode         string `json:"auth_code,omitempty"`
	HostRefNum       string `json:"host_ref_num,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// OrderInfo represents order-specific information
type OrderInfo struct {
	Amount      float64 `json:"amount,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Installment int     `json:"installment,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogTransaction logs a gateway transaction to OpenSearch
func (l *Logger) LogTransaction(ctx context.Context, log TransactionLog) error {
	if !l.client.IsEnabled() {
		return nil // Logging disabled
	}

	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	if log.RequestID == "" {
		log.RequestID = uuid.New().String()
	}

	indexName := l.client.GetLogIndexName(log.Bank)

	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(logJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchLogs searches for transaction logs based on criteria
func (l *Logger) SearchLogs(ctx context.Context, bank string, query map[string]any) ([]TransactionLog, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	indexName := l.client.GetLogIndexName(bank)

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100, // Limit results
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source TransactionLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	logs := make([]TransactionLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		logs[i] = hit.Source
	}

	return logs, nil
}

// GetOrderLogs retrieves logs for a specific order id
func (l *Logger) GetOrderLogs(ctx context.Context, bank, orderID string) ([]TransactionLog, error) {
	query := map[string]any{
		"match": map[string]any{
			"order_id": orderID,
		},
	}

	return l.SearchLogs(ctx, bank, query)
}

// GetRecentErrorLogs retrieves recent error logs for a bank
func (l *Logger) GetRecentErrorLogs(ctx context.Context, bank string, hours int) ([]TransactionLog, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{
					"range": map[string]any{
						"timestamp": map[string]any{
							"gte": fmt.Sprintf("now-%dh", hours),
						},
					},
				},
				{
					"exists": map[string]any{
						"field": "result.error_code",
					},
				},
			},
		},
	}

	return l.SearchLogs(ctx, bank, query)
}

// GetBankStats retrieves transaction statistics for a bank
func (l *Logger) GetBankStats(ctx context.Context, bank string, hours int) (map[string]any, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	indexName := l.client.GetLogIndexName(bank)

	aggQuery := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": fmt.Sprintf("now-%dh", hours),
				},
			},
		},
		"aggs": map[string]any{
			"total_requests": map[string]any{
				"value_count": map[string]any{
					"field": "request_id",
				},
			},
			"approved_count": map[string]any{
				"filter": map[string]any{
					"term": map[string]any{
						"result.status": "approved",
					},
				},
			},
			"error_count": map[string]any{
				"filter": map[string]any{
					"exists": map[string]any{
						"field": "result.error_code",
					},
				},
			},
			"avg_processing_time": map[string]any{
				"avg": map[string]any{
					"field": "result.processing_time_ms",
				},
			},
			"tx_types": map[string]any{
				"terms": map[string]any{
					"field": "tx_type",
					"size":  10,
				},
			},
		},
		"size": 0, // We only want aggregations
	}

	queryJSON, err := json.Marshal(aggQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregation query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("aggregation search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch aggregation error: %s", res.String())
	}

	var result map[string]any
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}

	return result, nil
}

// SanitizeForLog removes sensitive information from data before logging
func SanitizeForLog(data string) string {
	sensitiveFields := []string{
		"cardNumber", "card_number", "pan", "ccno", "cvv", "cvc", "cv2", "Cvv2Val",
		"cardHolderName", "card_holder_name", "expiry", "expDate", "expireMonth", "expireYear",
		"password", "storeKey", "secret_key", "token", "authorization",
	}

	result := data
	for _, field := range sensitiveFields {
		// Regex patterns for different formats, matched case-insensitively
		patterns := []string{
			fmt.Sprintf(`(?i)"%s"\s*:\s*"[^"]*"`, field),    // JSON format
			fmt.Sprintf(`(?i)<%s>[^<]*</%s>`, field, field), // XML element format
			fmt.Sprintf(`(?i)%s=[^&\s]+`, field),            // form parameter format
		}

		for _, pattern := range patterns {
			re := regexp.MustCompile(pattern)
			result = re.ReplaceAllString(result, fmt.Sprintf(`"%s":"***REDACTED***"`, field))
		}
	}

	return result
}

// MaskPAN masks a card number for logging, keeping the first six and last
// four digits.
func MaskPAN(pan string) string {
	if len(pan) < 10 {
		return "***"
	}
	masked := pan[:6]
	for i := 6; i < len(pan)-4; i++ {
		masked += "*"
	}
	return masked + pan[len(pan)-4:]
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, log any) error {
	if !l.client.IsEnabled() {
		return nil // Logging disabled
	}

	// Use system logs index
	indexName := "gopos-system-logs"

	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal system log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(logJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index system log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch system log error: %s", res.String())
	}

	return nil
}
