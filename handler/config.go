package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/pos"
)

// ConfigHandler handles merchant account configuration requests
type ConfigHandler struct {
	accounts *config.AccountConfig
	validate *validator.Validate
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(accounts *config.AccountConfig, validate *validator.Validate) *ConfigHandler {
	return &ConfigHandler{
		accounts: accounts,
		validate: validate,
	}
}

// SetAccountRequest is the request body for storing a bank account config
type SetAccountRequest struct {
	Config map[string]string `json:"config" validate:"required"`
}

// SetAccount stores a merchant's account configuration for a bank. The
// config is validated against the gateway's required fields before saving.
func (h *ConfigHandler) SetAccount(w http.ResponseWriter, r *http.Request) {
	merchantID := r.Header.Get("X-Merchant-ID")
	if merchantID == "" {
		response.Error(w, http.StatusBadRequest, "X-Merchant-ID header is required", nil)
		return
	}

	bank := chi.URLParam(r, "bank")
	if bank == "" {
		response.Error(w, http.StatusBadRequest, "Bank parameter is required", nil)
		return
	}

	var req SetAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	// Let the gateway validate its own required fields
	factory, err := pos.Get(bank)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown bank", err)
		return
	}
	if err := factory().ValidateConfig(req.Config); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid account configuration", err)
		return
	}

	if err := h.accounts.SetAccountConfig(merchantID, bank, req.Config); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to save configuration", err)
		return
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"bank":       bank,
		"message":    "Account configuration saved successfully",
	}

	response.Success(w, http.StatusOK, "Configuration updated", responseData)
}

// GetAccount returns a merchant's account configuration with secrets masked
func (h *ConfigHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	merchantID := r.Header.Get("X-Merchant-ID")
	if merchantID == "" {
		response.Error(w, http.StatusBadRequest, "X-Merchant-ID header is required", nil)
		return
	}

	bank := chi.URLParam(r, "bank")
	if bank == "" {
		response.Error(w, http.StatusBadRequest, "Bank parameter is required", nil)
		return
	}

	conf, err := h.accounts.GetAccountConfig(merchantID, bank)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Configuration not found", err)
		return
	}

	// Remove sensitive information from response
	publicConfig := make(map[string]string)
	for key, value := range conf {
		if strings.Contains(strings.ToLower(key), "key") ||
			strings.Contains(strings.ToLower(key), "password") ||
			strings.Contains(strings.ToLower(key), "secret") {
			// Mask sensitive values
			if len(value) > 8 {
				publicConfig[key] = value[:4] + "****" + value[len(value)-4:]
			} else {
				publicConfig[key] = "****"
			}
		} else {
			publicConfig[key] = value
		}
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"bank":       bank,
		"config":     publicConfig,
	}

	response.Success(w, http.StatusOK, "Configuration retrieved", responseData)
}

// DeleteAccount deletes a merchant's account configuration
func (h *ConfigHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	merchantID := r.Header.Get("X-Merchant-ID")
	if merchantID == "" {
		response.Error(w, http.StatusBadRequest, "X-Merchant-ID header is required", nil)
		return
	}

	bank := chi.URLParam(r, "bank")
	if bank == "" {
		response.Error(w, http.StatusBadRequest, "Bank parameter is required", nil)
		return
	}

	if err := h.accounts.DeleteAccountConfig(merchantID, bank); err != nil {
		response.Error(w, http.StatusNotFound, "Failed to delete configuration", err)
		return
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"bank":       bank,
		"message":    "Configuration deleted successfully",
	}

	response.Success(w, http.StatusOK, "Configuration deleted", responseData)
}

// GetRequiredFields returns the account fields a bank gateway needs
func (h *ConfigHandler) GetRequiredFields(w http.ResponseWriter, r *http.Request) {
	bank := chi.URLParam(r, "bank")
	if bank == "" {
		response.Error(w, http.StatusBadRequest, "Bank parameter is required", nil)
		return
	}

	environment := r.URL.Query().Get("environment")
	if environment != "production" {
		environment = "test"
	}

	factory, err := pos.Get(bank)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown bank", err)
		return
	}

	fields := factory().GetRequiredConfig(environment)

	responseData := map[string]any{
		"bank":        bank,
		"environment": environment,
		"fields":      fields,
	}

	response.Success(w, http.StatusOK, "Required fields retrieved", responseData)
}

// GetBanks returns all registered bank gateways
func (h *ConfigHandler) GetBanks(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "Banks retrieved", map[string]any{
		"banks": pos.DefaultRegistry.Banks(),
	})
}

// GetStats returns configuration and storage statistics
func (h *ConfigHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.GetStats()
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}

	response.Success(w, http.StatusOK, "Statistics retrieved", stats)
}
