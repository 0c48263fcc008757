package dto

import (
	"time"

	"gatepass/internal/model"
)

// ── 凭证模块 DTO ──

// RegisterRequest 单个来宾登记请求
type RegisterRequest struct {
	FullName   string `json:"full_name"   binding:"required,max=200"`
	ExternalID string `json:"external_id" binding:"required,max=100"`
	Group      string `json:"group"       binding:"required,max=100"`
}

// Identity 转换为来宾身份
func (r *RegisterRequest) Identity() model.GuestIdentity {
	return model.GuestIdentity{FullName: r.FullName, ExternalID: r.ExternalID, Group: r.Group}
}

// BulkRegisterRequest 批量登记请求；逐行校验由服务层完成
type BulkRegisterRequest struct {
	Label  string                `json:"label"`
	Guests []model.GuestIdentity `json:"guests" binding:"required,min=1"`
}

// CredentialListRequest 凭证列表查询参数
type CredentialListRequest struct {
	PaginationRequest
	Keyword string `form:"keyword"`
	Group   string `form:"group"`
	BatchID string `form:"batch_id"`
	Status  string `form:"status" binding:"omitempty,oneof=entered pending"`
}

// ── 凭证模块响应 ──

// CredentialResponse 凭证信息
type CredentialResponse struct {
	ID         string  `json:"id"`
	FullName   string  `json:"full_name"`
	ExternalID string  `json:"external_id"`
	Group      string  `json:"group"`
	BatchID    *string `json:"batch_id,omitempty"`
	IsRedeemed bool    `json:"is_redeemed"`
	RedeemedAt *string `json:"redeemed_at,omitempty"`
	CreatedAt  string  `json:"created_at"`
	QRPayload  string  `json:"qr_payload,omitempty"`
}

// ToCredentialResponse 模型 → 响应
func ToCredentialResponse(rec *model.CredentialRecord) CredentialResponse {
	return CredentialResponse{
		ID:         rec.CredentialID,
		FullName:   rec.FullName,
		ExternalID: rec.ExternalID,
		Group:      rec.Group,
		BatchID:    rec.BatchID,
		IsRedeemed: rec.IsRedeemed,
		RedeemedAt: FormatTimePtr(rec.RedeemedAt),
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToCredentialResponses 批量转换
func ToCredentialResponses(recs []model.CredentialRecord) []CredentialResponse {
	out := make([]CredentialResponse, 0, len(recs))
	for i := range recs {
		out = append(out, ToCredentialResponse(&recs[i]))
	}
	return out
}

// BulkRejectionResponse 批量登记中被拒绝的行
type BulkRejectionResponse struct {
	Index      int    `json:"index"`
	FullName   string `json:"full_name"`
	ExternalID string `json:"external_id"`
	Group      string `json:"group"`
	Reason     string `json:"reason"`
}

// BulkRegisterResponse 批量登记结果
type BulkRegisterResponse struct {
	BatchID       string                  `json:"batch_id,omitempty"`
	Label         string                  `json:"label"`
	AddedCount    int                     `json:"added_count"`
	RejectedCount int                     `json:"rejected_count"`
	Added         []CredentialResponse    `json:"added"`
	Rejected      []BulkRejectionResponse `json:"rejected"`
}

// FormatTimePtr 可空时间格式化为 RFC3339
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
