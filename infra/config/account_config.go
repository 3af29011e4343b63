package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// AccountConfig manages merchant account configurations for bank gateways
type AccountConfig struct {
	configs map[string]map[string]string
	store   *AccountStore // SQLite storage for persistence
	mu      sync.RWMutex  // Thread-safe access
}

// NewAccountConfig creates a new account configuration
func NewAccountConfig() *AccountConfig {
	config := &AccountConfig{
		configs: make(map[string]map[string]string),
	}

	// Initialize SQLite storage
	store, err := NewAccountStore(GetAppConfig().AccountDBPath)
	if err != nil {
		// Fallback to memory-only mode if SQLite fails
		log.Printf("Warning: Failed to initialize SQLite storage (%v), falling back to memory-only mode", err)
	} else {
		config.store = store

		// Load existing configurations from SQLite if available
		if err := config.loadFromStore(); err != nil {
			log.Printf("Warning: Failed to load configurations from SQLite: %v", err)
		}
	}

	return config
}

// loadFromStore loads all merchant account configurations from SQLite storage
func (c *AccountConfig) loadFromStore() error {
	if c.store == nil {
		return fmt.Errorf("SQLite storage not initialized")
	}

	configs, err := c.store.LoadAllAccounts()
	if err != nil {
		return fmt.Errorf("failed to load configs from SQLite: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Merge stored configs with in-memory configs
	for k, v := range configs {
		c.configs[k] = v
	}

	return nil
}

// LoadFromEnv loads a bank's account configuration from environment variables.
// Variables are expected as <BANK>_<KEY>, e.g. GARANTI_CLIENTID, GARANTI_TERMINALID.
func (c *AccountConfig) LoadFromEnv(merchantID, bank string) (map[string]string, error) {
	prefix := strings.ToUpper(bank) + "_"

	config := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		key := envKeyToConfigKey(strings.TrimPrefix(parts[0], prefix))
		config[key] = parts[1]
	}

	if len(config) == 0 {
		return nil, fmt.Errorf("no environment configuration found for bank: %s", bank)
	}

	if err := c.SetAccountConfig(merchantID, bank, config); err != nil {
		return nil, err
	}

	return config, nil
}

// envKeyToConfigKey maps an environment variable suffix to the camelCase
// configuration keys gateways expect (CLIENTID -> clientId).
func envKeyToConfigKey(key string) string {
	known := map[string]string{
		"CLIENTID":     "clientId",
		"TERMINALID":   "terminalId",
		"USERNAME":     "username",
		"PASSWORD":     "password",
		"STOREKEY":     "storeKey",
		"MERCHANTTYPE": "merchantType",
		"MODEL":        "model",
		"ENVIRONMENT":  "environment",
		"APIURL":       "apiUrl",
		"POSNETID":     "posnetId",
	}
	if mapped, ok := known[key]; ok {
		return mapped
	}
	return strings.ToLower(key)
}

// SetAccountConfig dynamically sets configuration for a specific merchant and bank
func (c *AccountConfig) SetAccountConfig(merchantID, bank string, config map[string]string) error {
	if merchantID == "" {
		return fmt.Errorf("merchant ID cannot be empty")
	}
	if bank == "" {
		return fmt.Errorf("bank name cannot be empty")
	}
	if len(config) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Save to SQLite if available
	if c.store != nil {
		if err := c.store.SaveAccount(merchantID, bank, config); err != nil {
			return fmt.Errorf("failed to save config to SQLite: %w", err)
		}
	}

	// Create merchant-specific bank key
	merchantBankKey := fmt.Sprintf("%s_%s", strings.ToUpper(merchantID), strings.ToLower(bank))

	// Update in-memory cache
	c.configs[merchantBankKey] = config
	return nil
}

// GetAccountConfig returns configuration for a specific merchant and bank
func (c *AccountConfig) GetAccountConfig(merchantID, bank string) (map[string]string, error) {
	if merchantID == "" {
		return nil, fmt.Errorf("merchant ID cannot be empty")
	}

	c.mu.RLock()
	// Create merchant-specific bank key
	merchantBankKey := fmt.Sprintf("%s_%s", strings.ToUpper(merchantID), strings.ToLower(bank))

	config, exists := c.configs[merchantBankKey]
	c.mu.RUnlock()

	// If not found in memory, try loading from SQLite
	if !exists && c.store != nil {
		storedConfig, err := c.store.LoadAccount(merchantID, bank)
		if err == nil {
			// Cache in memory for future use
			c.mu.Lock()
			c.configs[merchantBankKey] = storedConfig
			c.mu.Unlock()
			config = storedConfig
			exists = true
		}
	}

	if !exists {
		return nil, fmt.Errorf("no configuration found for merchant: %s, bank: %s", merchantID, bank)
	}

	// Return a copy to prevent external modification
	configCopy := make(map[string]string)
	for k, v := range config {
		configCopy[k] = v
	}

	return configCopy, nil
}

// GetConfiguredBanks returns the banks a merchant has configurations for
func (c *AccountConfig) GetConfiguredBanks(merchantID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prefix := strings.ToUpper(merchantID) + "_"
	banks := make([]string, 0)
	for key := range c.configs {
		if strings.HasPrefix(key, prefix) {
			banks = append(banks, strings.TrimPrefix(key, prefix))
		}
	}
	return banks
}

// DeleteAccountConfig deletes a merchant account configuration
func (c *AccountConfig) DeleteAccountConfig(merchantID, bank string) error {
	if merchantID == "" {
		return fmt.Errorf("merchant ID cannot be empty")
	}
	if bank == "" {
		return fmt.Errorf("bank name cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Create merchant-specific bank key
	merchantBankKey := fmt.Sprintf("%s_%s", strings.ToUpper(merchantID), strings.ToLower(bank))

	// Delete from SQLite if available
	if c.store != nil {
		if err := c.store.DeleteAccount(merchantID, bank); err != nil {
			return fmt.Errorf("failed to delete config from SQLite: %w", err)
		}
	}

	// Delete from memory cache
	delete(c.configs, merchantBankKey)
	return nil
}

// GetStats returns configuration and storage statistics
func (c *AccountConfig) GetStats() (map[string]any, error) {
	stats := make(map[string]any)

	c.mu.RLock()
	memoryConfigs := len(c.configs)
	c.mu.RUnlock()

	stats["memory_configs"] = memoryConfigs

	// Get SQLite statistics if available
	if c.store != nil {
		storeStats, err := c.store.GetStats()
		if err != nil {
			stats["sqlite_error"] = err.Error()
		} else {
			stats["sqlite"] = storeStats
		}
	} else {
		stats["sqlite"] = "not_available"
	}

	return stats, nil
}

// Close releases the underlying storage
func (c *AccountConfig) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}
