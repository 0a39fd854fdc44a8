package client

import "github.com/aarushk09/edpear-sdk/config"

// ErrorResponse is the standard API error shape
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Approval request status values reported by the status endpoint.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// InitLoginResponse is the response from POST /api/auth/cli/init.
type InitLoginResponse struct {
	RequestID string `json:"requestId"`
	URL       string `json:"url"`
}

// LoginStatusResponse is the response from GET /api/auth/cli/status.
// CLIToken and User are set only once Status is "completed".
type LoginStatusResponse struct {
	Status   string       `json:"status"`
	CLIToken string       `json:"cliToken,omitempty"`
	User     *config.User `json:"user,omitempty"`
}

// MeResponse is the response from GET /api/auth/me.
type MeResponse struct {
	User config.User `json:"user"`
}

// GenerateKeyResponse is the response from POST /api/keys/generate.
type GenerateKeyResponse struct {
	APIKey config.APIKey `json:"apiKey"`
}

// ListKeysResponse is the response from GET /api/keys/list.
type ListKeysResponse struct {
	APIKeys []config.APIKey `json:"apiKeys"`
}
