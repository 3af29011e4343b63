package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccountConfig(t *testing.T) *AccountConfig {
	t.Helper()

	store, err := NewAccountStore(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &AccountConfig{
		configs: make(map[string]map[string]string),
		store:   store,
	}
}

func TestAccountConfig_SetAndGet(t *testing.T) {
	accounts := newTestAccountConfig(t)

	config := map[string]string{
		"clientId":   "400000200",
		"terminalId": "30691298",
	}

	require.NoError(t, accounts.SetAccountConfig("merchant1", "garanti", config))

	loaded, err := accounts.GetAccountConfig("merchant1", "garanti")
	require.NoError(t, err)
	assert.Equal(t, config, loaded)

	// Returned map is a copy
	loaded["clientId"] = "tampered"
	again, err := accounts.GetAccountConfig("merchant1", "garanti")
	require.NoError(t, err)
	assert.Equal(t, "400000200", again["clientId"])
}

func TestAccountConfig_SetValidation(t *testing.T) {
	accounts := newTestAccountConfig(t)

	assert.Error(t, accounts.SetAccountConfig("", "garanti", map[string]string{"a": "b"}))
	assert.Error(t, accounts.SetAccountConfig("merchant1", "", map[string]string{"a": "b"}))
	assert.Error(t, accounts.SetAccountConfig("merchant1", "garanti", map[string]string{}))
}

func TestAccountConfig_GetMissing(t *testing.T) {
	accounts := newTestAccountConfig(t)

	_, err := accounts.GetAccountConfig("merchant1", "posnet")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration found")
}

func TestAccountConfig_Delete(t *testing.T) {
	accounts := newTestAccountConfig(t)

	require.NoError(t, accounts.SetAccountConfig("merchant1", "garanti", map[string]string{"clientId": "a"}))
	require.NoError(t, accounts.DeleteAccountConfig("merchant1", "garanti"))

	_, err := accounts.GetAccountConfig("merchant1", "garanti")
	assert.Error(t, err)
}

func TestAccountConfig_GetConfiguredBanks(t *testing.T) {
	accounts := newTestAccountConfig(t)

	require.NoError(t, accounts.SetAccountConfig("merchant1", "garanti", map[string]string{"clientId": "a"}))
	require.NoError(t, accounts.SetAccountConfig("merchant1", "posnet", map[string]string{"clientId": "b"}))
	require.NoError(t, accounts.SetAccountConfig("merchant2", "estpos", map[string]string{"clientId": "c"}))

	banks := accounts.GetConfiguredBanks("merchant1")
	assert.Len(t, banks, 2)
	assert.Contains(t, banks, "garanti")
	assert.Contains(t, banks, "posnet")
}

func TestAccountConfig_LoadFromEnv(t *testing.T) {
	accounts := newTestAccountConfig(t)

	os.Setenv("VAKIFBANK_CLIENTID", "000000000111111")
	os.Setenv("VAKIFBANK_PASSWORD", "3XTgER89as")
	os.Setenv("VAKIFBANK_TERMINALID", "VP999999")
	defer func() {
		os.Unsetenv("VAKIFBANK_CLIENTID")
		os.Unsetenv("VAKIFBANK_PASSWORD")
		os.Unsetenv("VAKIFBANK_TERMINALID")
	}()

	config, err := accounts.LoadFromEnv("merchant1", "vakifbank")
	require.NoError(t, err)
	assert.Equal(t, "000000000111111", config["clientId"])
	assert.Equal(t, "3XTgER89as", config["password"])
	assert.Equal(t, "VP999999", config["terminalId"])

	// Loaded config is cached
	loaded, err := accounts.GetAccountConfig("merchant1", "vakifbank")
	require.NoError(t, err)
	assert.Equal(t, "000000000111111", loaded["clientId"])
}

func TestAccountConfig_LoadFromEnv_Missing(t *testing.T) {
	accounts := newTestAccountConfig(t)

	_, err := accounts.LoadFromEnv("merchant1", "nonexistentbank")
	assert.Error(t, err)
}

func TestEnvKeyToConfigKey(t *testing.T) {
	tests := map[string]string{
		"CLIENTID":    "clientId",
		"TERMINALID":  "terminalId",
		"STOREKEY":    "storeKey",
		"POSNETID":    "posnetId",
		"APIURL":      "apiUrl",
		"ENVIRONMENT": "environment",
		"CUSTOM":      "custom",
	}

	for in, want := range tests {
		assert.Equal(t, want, envKeyToConfigKey(in))
	}
}

func TestAccountConfig_GetStats(t *testing.T) {
	accounts := newTestAccountConfig(t)

	require.NoError(t, accounts.SetAccountConfig("merchant1", "garanti", map[string]string{"clientId": "a"}))

	stats, err := accounts.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["memory_configs"])
	assert.NotNil(t, stats["sqlite"])
}
