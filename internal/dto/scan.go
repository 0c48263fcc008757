package dto

// ── 扫码核销 DTO ──

// ScanRequest 扫码请求：Payload 为二维码原文，CredentialID 为手工输入的凭证 ID，二选一
type ScanRequest struct {
	Payload      string `json:"payload"`
	CredentialID string `json:"credential_id"`
}

// ScanResponse 扫码结果；Status 取值 accepted | already_redeemed | unknown | malformed
type ScanResponse struct {
	Status     string              `json:"status"`
	Message    string              `json:"message"`
	Credential *CredentialResponse `json:"credential,omitempty"`
	RedeemedAt *string             `json:"redeemed_at,omitempty"`
}
