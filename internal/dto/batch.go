package dto

import (
	"time"

	"gatepass/internal/model"
)

// ── 批次与统计响应 ──

// BatchResponse 批次信息
type BatchResponse struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	MemberCount int    `json:"member_count"`
	CreatedAt   string `json:"created_at"`
}

// ToBatchResponses 模型 → 响应
func ToBatchResponses(entries []model.BatchLedgerEntry) []BatchResponse {
	out := make([]BatchResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, BatchResponse{
			ID:          e.BatchID,
			Label:       e.Label,
			MemberCount: e.MemberCount,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// BatchMembersResponse 批次成员
type BatchMembersResponse struct {
	BatchID string               `json:"batch_id"`
	Members []CredentialResponse `json:"members"`
}

// StatsResponse 入场统计
type StatsResponse struct {
	Total         int64                `json:"total"`
	Entered       int64                `json:"entered"`
	Pending       int64                `json:"pending"`
	RecentEntries []CredentialResponse `json:"recent_entries"`
}
