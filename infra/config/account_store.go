package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// AccountStore handles persistent storage of merchant account configurations
type AccountStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *AccountStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		// Check if it's a busy error
		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				// Exponential backoff: 10ms, 20ms, 40ms, 80ms
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				log.Printf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1)
				time.Sleep(backoff)
				continue
			}
		} else {
			// Not a retry-able error
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// NewAccountStore creates a new SQLite-backed account store
func NewAccountStore(dbPath string) (*AccountStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// SQLite connection string with multi-process optimizations
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &AccountStore{
		db:   db,
		path: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.optimizeForMultiProcess(); err != nil {
		log.Printf("Warning: Failed to apply optimizations: %v", err)
	}

	log.Printf("Account store initialized at: %s", dbPath)
	return store, nil
}

// initSchema creates the necessary tables
func (s *AccountStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS merchant_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_id TEXT NOT NULL,
		bank TEXT NOT NULL,
		config_data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(merchant_id, bank)
	);

	CREATE INDEX IF NOT EXISTS idx_merchant_bank ON merchant_accounts(merchant_id, bank);

	-- Trigger to update updated_at column
	CREATE TRIGGER IF NOT EXISTS update_merchant_accounts_updated_at
		AFTER UPDATE ON merchant_accounts
	BEGIN
		UPDATE merchant_accounts SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;
	`

	_, err := s.db.Exec(query)
	return err
}

// optimizeForMultiProcess applies SQLite optimizations for multi-process access
func (s *AccountStore) optimizeForMultiProcess() error {
	optimizations := []string{
		"PRAGMA journal_mode = WAL;",    // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL;",  // Balance between safety and speed
		"PRAGMA cache_size = 1000;",     // Increase cache size
		"PRAGMA busy_timeout = 30000;",  // 30 second timeout for lock waits
		"PRAGMA temp_store = memory;",   // Store temp tables in memory
		"PRAGMA mmap_size = 268435456;", // 256MB memory mapping
		"PRAGMA optimize;",              // Optimize database
	}

	for _, pragma := range optimizations {
		if _, err := s.db.Exec(pragma); err != nil {
			log.Printf("Warning: Failed to execute %s: %v", pragma, err)
		}
	}

	// Test WAL mode is actually enabled
	var journalMode string
	err := s.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode)
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	log.Printf("SQLite journal mode: %s", journalMode)
	return nil
}

// SaveAccount saves a merchant's bank account configuration
func (s *AccountStore) SaveAccount(merchantID, bank string, config map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return s.retryOperation(func() error {
		query := `
		INSERT INTO merchant_accounts (merchant_id, bank, config_data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(merchant_id, bank)
		DO UPDATE SET
			config_data = excluded.config_data,
			updated_at = CURRENT_TIMESTAMP
		`

		_, err := s.db.Exec(query, merchantID, bank, string(configJSON))
		if err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}

		log.Printf("Saved account for merchant %s, bank %s", merchantID, bank)
		return nil
	}, 3) // Max 3 retries
}

// LoadAccount loads a merchant's bank account configuration
func (s *AccountStore) LoadAccount(merchantID, bank string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var config map[string]string
	err := s.retryOperation(func() error {
		query := `
		SELECT config_data
		FROM merchant_accounts
		WHERE merchant_id = ? AND bank = ?
		`

		var configJSON string
		err := s.db.QueryRow(query, merchantID, bank).Scan(&configJSON)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("no account found for merchant: %s, bank: %s", merchantID, bank)
			}
			return fmt.Errorf("failed to load account: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		return nil
	}, 3) // Max 3 retries

	return config, err
}

// LoadAllAccounts loads all merchant account configurations
func (s *AccountStore) LoadAllAccounts() (map[string]map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var configs map[string]map[string]string
	err := s.retryOperation(func() error {
		query := `
		SELECT merchant_id, bank, config_data
		FROM merchant_accounts
		ORDER BY merchant_id, bank
		`

		rows, err := s.db.Query(query)
		if err != nil {
			return fmt.Errorf("failed to query accounts: %w", err)
		}
		defer rows.Close()

		configs = make(map[string]map[string]string)

		for rows.Next() {
			var merchantID, bank, configJSON string
			if err := rows.Scan(&merchantID, &bank, &configJSON); err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}

			var config map[string]string
			if err := json.Unmarshal([]byte(configJSON), &config); err != nil {
				log.Printf("Warning: failed to unmarshal config for merchant %s, bank %s: %v", merchantID, bank, err)
				continue
			}

			configs[fmt.Sprintf("%s_%s", merchantID, bank)] = config
		}

		if err = rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}

		return nil
	}, 3) // Max 3 retries

	if err != nil {
		return nil, err
	}

	log.Printf("Loaded %d merchant accounts from SQLite", len(configs))
	return configs, nil
}

// DeleteAccount deletes a merchant's bank account configuration
func (s *AccountStore) DeleteAccount(merchantID, bank string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		DELETE FROM merchant_accounts
		WHERE merchant_id = ? AND bank = ?
		`

		result, err := s.db.Exec(query, merchantID, bank)
		if err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			return fmt.Errorf("no account found for merchant: %s, bank: %s", merchantID, bank)
		}

		log.Printf("Deleted account for merchant %s, bank %s", merchantID, bank)
		return nil
	}, 3) // Max 3 retries
}

// GetMerchantsByBank returns all merchant IDs that have an account for a bank
func (s *AccountStore) GetMerchantsByBank(bank string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	SELECT DISTINCT merchant_id
	FROM merchant_accounts
	WHERE bank = ?
	ORDER BY merchant_id
	`

	rows, err := s.db.Query(query, bank)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchants by bank: %w", err)
	}
	defer rows.Close()

	var merchants []string
	for rows.Next() {
		var merchantID string
		if err := rows.Scan(&merchantID); err != nil {
			return nil, fmt.Errorf("failed to scan merchant ID: %w", err)
		}
		merchants = append(merchants, merchantID)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating merchant rows: %w", err)
	}

	return merchants, nil
}

// Close closes the database connection
func (s *AccountStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStats returns database statistics
func (s *AccountStore) GetStats() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]any)

	var totalAccounts int
	err := s.db.QueryRow("SELECT COUNT(*) FROM merchant_accounts").Scan(&totalAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	stats["total_accounts"] = totalAccounts

	var uniqueMerchants int
	err = s.db.QueryRow("SELECT COUNT(DISTINCT merchant_id) FROM merchant_accounts").Scan(&uniqueMerchants)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique merchants: %w", err)
	}
	stats["unique_merchants"] = uniqueMerchants

	var uniqueBanks int
	err = s.db.QueryRow("SELECT COUNT(DISTINCT bank) FROM merchant_accounts").Scan(&uniqueBanks)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique banks: %w", err)
	}
	stats["unique_banks"] = uniqueBanks

	// Database file size
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats["db_size_bytes"] = fileInfo.Size()
	}

	stats["db_path"] = s.path

	return stats, nil
}
