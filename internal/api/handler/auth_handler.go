package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gatepass/internal/dto"
	"gatepass/internal/service"
	"gatepass/pkg/response"
)

// AuthHandler 认证模块 HTTP 处理器
type AuthHandler struct {
	authSvc service.AuthService
}

// NewAuthHandler 创建 AuthHandler
func NewAuthHandler(authSvc service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login 工作人员登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, 11001, "用户名或密码错误")
			return
		}
		response.InternalError(c)
		return
	}

	response.OK(c, result)
}

// Logout 登出，吊销当前 Token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	jti, exp := tokenInfo(c)
	if err := h.authSvc.Logout(c.Request.Context(), jti, exp); err != nil {
		response.InternalError(c)
		return
	}
	response.OK(c, nil)
}

// GetCurrentOperator 当前工作人员信息
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentOperator(c *gin.Context) {
	operatorID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}

	result, err := h.authSvc.GetCurrentOperator(c.Request.Context(), operatorID)
	if err != nil {
		if errors.Is(err, service.ErrOperatorNotFound) {
			response.NotFound(c, 11002, "工作人员不存在")
			return
		}
		response.InternalError(c)
		return
	}
	response.OK(c, result)
}

// CreateOperator 创建工作人员账号（仅管理员）
// POST /api/v1/operators
func (h *AuthHandler) CreateOperator(c *gin.Context) {
	callerID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}

	var req dto.CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.authSvc.CreateOperator(c.Request.Context(), &req, callerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameExists):
			response.Conflict(c, 11003, "用户名已存在")
		case errors.Is(err, service.ErrInvalidRole):
			response.BadRequest(c, 11004, "角色无效")
		default:
			response.InternalError(c)
		}
		return
	}
	response.Created(c, result)
}
