package request

// ManualRecordRequest is one manually entered backfill record, typically the
// opening trade behind an orphaned close.
type ManualRecordRequest struct {
	Institution string  `json:"institution"`
	Symbol      string  `json:"symbol"`
	RecordType  string  `json:"recordType"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	Fee         float64 `json:"fee"`
	Currency    string  `json:"currency"`
	Timestamp   string  `json:"timestamp"`
	Expiry      *string `json:"expiry,omitempty"`
	Description string  `json:"description,omitempty"`
}

// GatewayConfigRequest carries Flex Web Service credentials for one
// institution.
type GatewayConfigRequest struct {
	Institution       string `json:"institution"`
	FlexToken         string `json:"flexToken"`
	FlexQueryID       int    `json:"flexQueryId"`
	AutoImportEnabled bool   `json:"autoImportEnabled"`
}
