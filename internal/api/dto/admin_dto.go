package dto

import "time"

// MintTokenRequest payload.
type MintTokenRequest struct {
	HandlerID string `json:"handler_id"`
}

// MintTokenResponse carries a freshly signed handler token.
type MintTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
