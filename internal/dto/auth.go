package dto

import (
	"time"

	"gatepass/internal/model"
)

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateOperatorRequest 创建工作人员请求
type CreateOperatorRequest struct {
	Username    string `json:"username"     binding:"required,min=3,max=64"`
	DisplayName string `json:"display_name" binding:"max=100"`
	Password    string `json:"password"     binding:"required,min=8,max=72"`
	Role        string `json:"role"         binding:"required,oneof=admin registrar scanner"`
}

// ── 认证模块响应 ──

// TokenResponse 登录成功响应
type TokenResponse struct {
	AccessToken string           `json:"access_token"`
	ExpiresIn   int              `json:"expires_in"` // Access Token 有效期（秒）
	Operator    OperatorResponse `json:"operator"`
}

// OperatorResponse 工作人员信息（脱敏）
type OperatorResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

// ToOperatorResponse 模型 → 响应
func ToOperatorResponse(op *model.Operator) OperatorResponse {
	return OperatorResponse{
		ID:          op.OperatorID,
		Username:    op.Username,
		DisplayName: op.DisplayName,
		Role:        op.Role,
		CreatedAt:   op.CreatedAt.Format(time.RFC3339),
	}
}
