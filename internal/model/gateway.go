package model

// GatewayConfig holds the Flex Web Service credentials for one institution.
// FlexToken is plaintext in memory only; the repository stores it encrypted.
type GatewayConfig struct {
	ID                string `json:"id"`
	Institution       string `json:"institution"`
	FlexToken         string `json:"-"`
	FlexQueryID       int    `json:"flexQueryId"`
	AutoImportEnabled bool   `json:"autoImportEnabled"`
}
