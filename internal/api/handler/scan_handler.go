package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"gatepass/internal/dto"
	"gatepass/internal/service"
	"gatepass/pkg/response"
)

// ScanHandler 入口扫码 HTTP 处理器
type ScanHandler struct {
	redemption service.RedemptionService
}

// NewScanHandler 创建 ScanHandler
func NewScanHandler(redemption service.RedemptionService) *ScanHandler {
	return &ScanHandler{redemption: redemption}
}

var scanMessages = map[service.RedemptionStatus]string{
	service.StatusAccepted:        "验证通过，欢迎入场",
	service.StatusAlreadyRedeemed: "该凭证已入场",
	service.StatusUnknown:         "凭证不存在",
	service.StatusMalformed:       "二维码无法识别",
}

// Scan 核销一次扫码
// POST /api/v1/scans
//
// 四种判定结果均返回 200，由 data.status 区分；仅存储不可用时返回 503
func (h *ScanHandler) Scan(c *gin.Context) {
	operatorID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	var (
		out *service.RedemptionOutcome
		err error
	)
	if strings.TrimSpace(req.Payload) != "" {
		out, err = h.redemption.RedeemPayload(c.Request.Context(), req.Payload, operatorID)
	} else {
		out, err = h.redemption.Redeem(c.Request.Context(), strings.TrimSpace(req.CredentialID), operatorID)
	}
	if err != nil {
		handleCommonError(c, err)
		return
	}

	resp := dto.ScanResponse{
		Status:     string(out.Status),
		Message:    scanMessages[out.Status],
		RedeemedAt: dto.FormatTimePtr(out.RedeemedAt),
	}
	if out.Record != nil {
		cr := dto.ToCredentialResponse(out.Record)
		resp.Credential = &cr
	}
	response.OK(c, resp)
}
