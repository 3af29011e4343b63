package pos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	mockFactory := func() Gateway { return nil }

	registry.Register("test-bank", mockFactory)

	factory, err := registry.Get("test-bank")
	assert.NoError(t, err)
	assert.NotNil(t, factory)
}

func TestRegistry_Banks(t *testing.T) {
	registry := NewRegistry()

	assert.Empty(t, registry.Banks())

	mockFactory := func() Gateway { return nil }
	registry.Register("bank1", mockFactory)
	registry.Register("bank2", mockFactory)

	banks := registry.Banks()
	assert.Len(t, banks, 2)
	assert.Contains(t, banks, "bank1")
	assert.Contains(t, banks, "bank2")
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := NewRegistry()

	factory, err := registry.Get("non-existent")
	assert.Error(t, err)
	assert.Nil(t, factory)
	assert.Contains(t, err.Error(), "is not registered")
}

func TestNewGateway_UnknownBank(t *testing.T) {
	_, err := NewGateway("no-such-bank", map[string]string{})
	assert.Error(t, err)
}

func TestAccountFromConfig(t *testing.T) {
	account, err := AccountFromConfig("test-bank", map[string]string{
		"clientId":   "400000200",
		"terminalId": "30691298",
		"username":   "PROVAUT",
		"password":   "123qweASD/",
		"storeKey":   "12345678",
		"model":      "3d",
	})
	require.NoError(t, err)

	assert.Equal(t, "test-bank", account.Bank)
	assert.Equal(t, "400000200", account.ClientID)
	assert.Equal(t, Model3D, account.Model)
	assert.True(t, account.Is3D())

	// Defaults
	assert.Equal(t, EnvTest, account.Environment)
	assert.False(t, account.IsProduction())
}

func TestAccountFromConfig_Defaults(t *testing.T) {
	account, err := AccountFromConfig("test-bank", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, ModelRegular, account.Model)
	assert.Equal(t, EnvTest, account.Environment)
	assert.False(t, account.Is3D())
}

func TestAccountFromConfig_Invalid(t *testing.T) {
	_, err := AccountFromConfig("test-bank", map[string]string{"model": "2d"})
	assert.Error(t, err)

	_, err = AccountFromConfig("test-bank", map[string]string{"environment": "staging"})
	assert.Error(t, err)
}

func TestValidateConfigFields(t *testing.T) {
	fields := []ConfigField{
		{Key: "clientId", Required: true, Type: "string", MinLength: 5, MaxLength: 15},
		{Key: "terminalId", Required: true, Type: "string", Pattern: `^[A-Z0-9]+$`},
		{Key: "storeKey", Required: false, Type: "string"},
	}

	conf := map[string]string{
		"clientId":   "400000200",
		"terminalId": "VP000579",
	}
	assert.NoError(t, ValidateConfigFields("test-bank", conf, fields))

	// Missing required field
	err := ValidateConfigFields("test-bank", map[string]string{"clientId": "400000200"}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminalId")

	// Empty required field
	err = ValidateConfigFields("test-bank", map[string]string{"clientId": "  ", "terminalId": "VP000579"}, fields)
	assert.Error(t, err)

	// Pattern mismatch
	err = ValidateConfigFields("test-bank", map[string]string{"clientId": "400000200", "terminalId": "vp-579"}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern")

	// Length bounds
	err = ValidateConfigFields("test-bank", map[string]string{"clientId": "40", "terminalId": "VP000579"}, fields)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")
}
