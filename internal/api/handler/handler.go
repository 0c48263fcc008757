package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"gatepass/internal/service"
	"gatepass/pkg/response"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	Credential *CredentialHandler
	Scan       *ScanHandler
	Report     *ReportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth),
		Credential: NewCredentialHandler(svc.Registrar, svc.Credential, svc.Import),
		Scan:       NewScanHandler(svc.Redemption),
		Report:     NewReportHandler(svc.Batch, svc.Report),
	}
}

// handleCommonError 各模块共用的兜底错误映射
// 存储不可用可重试，返回 503；其余按 500 处理
func handleCommonError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrStoreUnavailable) {
		response.ServiceUnavailable(c, 50300, "存储暂时不可用，请稍后重试")
		return
	}
	response.InternalError(c)
}
