package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gatepass/internal/dto"
	"gatepass/internal/repository"
	"gatepass/internal/service"
	"gatepass/pkg/response"
)

// CredentialHandler 来宾登记与凭证管理 HTTP 处理器
type CredentialHandler struct {
	registrar  service.RegistrarService
	credential service.CredentialService
	importer   service.ImportService
}

// NewCredentialHandler 创建 CredentialHandler
func NewCredentialHandler(registrar service.RegistrarService, credential service.CredentialService, importer service.ImportService) *CredentialHandler {
	return &CredentialHandler{registrar: registrar, credential: credential, importer: importer}
}

// Register 登记单个来宾
// POST /api/v1/credentials
func (h *CredentialHandler) Register(c *gin.Context) {
	operatorID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	rec, err := h.registrar.RegisterSingle(c.Request.Context(), req.Identity(), operatorID)
	if err != nil {
		handleCredentialError(c, err)
		return
	}

	resp := dto.ToCredentialResponse(rec)
	resp.QRPayload, _ = h.credential.Payload(rec.CredentialID)
	response.Created(c, resp)
}

// RegisterBulk 批量登记（JSON）
// POST /api/v1/credentials/bulk
func (h *CredentialHandler) RegisterBulk(c *gin.Context) {
	operatorID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}

	var req dto.BulkRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.registrar.RegisterBulk(c.Request.Context(), req.Guests, req.Label, operatorID)
	if err != nil {
		handleCredentialError(c, err)
		return
	}
	response.OK(c, toBulkResponse(result))
}

// Import 表格导入：解析后按批量登记处理
// POST /api/v1/credentials/import (multipart/form-data, field="file")
func (h *CredentialHandler) Import(c *gin.Context) {
	operatorID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, 10001, "请上传 Excel 文件")
		return
	}
	defer file.Close()

	identities, label, err := h.importer.ParseImportFile(file, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImportNoData),
			errors.Is(err, service.ErrImportBadHeader),
			errors.Is(err, service.ErrImportTooMany):
			response.BadRequest(c, 12201, err.Error())
		default:
			response.ErrorWithDetails(c, http.StatusBadRequest, 12202, "无法解析导入文件", err.Error())
		}
		return
	}
	// 表单中显式给出的批次名称优先
	if override := c.PostForm("label"); override != "" {
		label = override
	}

	result, err := h.registrar.RegisterBulk(c.Request.Context(), identities, label, operatorID)
	if err != nil {
		handleCredentialError(c, err)
		return
	}
	response.OK(c, toBulkResponse(result))
}

// ImportTemplate 下载导入模板
// GET /api/v1/credentials/import/template
func (h *CredentialHandler) ImportTemplate(c *gin.Context) {
	buf, filename, err := h.importer.Template()
	if err != nil {
		response.InternalError(c)
		return
	}
	writeXLSX(c, filename, buf.Bytes())
}

// List 分页查询凭证
// GET /api/v1/credentials
func (h *CredentialHandler) List(c *gin.Context) {
	var req dto.CredentialListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	filters := &repository.CredentialListFilters{
		Keyword: req.Keyword,
		Group:   req.Group,
		BatchID: req.BatchID,
	}
	switch req.Status {
	case "entered":
		v := true
		filters.Redeemed = &v
	case "pending":
		v := false
		filters.Redeemed = &v
	}

	offset, limit := req.Window()
	items, total, err := h.credential.ListRecords(c.Request.Context(), filters, offset, limit)
	if err != nil {
		handleCredentialError(c, err)
		return
	}
	response.OKPage(c, dto.ToCredentialResponses(items), total, req.GetPage(), limit)
}

// Get 凭证详情，附带二维码文本
// GET /api/v1/credentials/:id
func (h *CredentialHandler) Get(c *gin.Context) {
	rec, err := h.credential.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleCredentialError(c, err)
		return
	}
	resp := dto.ToCredentialResponse(rec)
	resp.QRPayload, _ = h.credential.Payload(rec.CredentialID)
	response.OK(c, resp)
}

// QRCode 凭证二维码图片
// GET /api/v1/credentials/:id/qr?size=256
func (h *CredentialHandler) QRCode(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	if size < 64 || size > 1024 {
		size = 256
	}

	png, err := h.credential.QRCode(c.Request.Context(), c.Param("id"), size)
	if err != nil {
		handleCredentialError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Delete 管理员删除凭证
// DELETE /api/v1/credentials/:id
func (h *CredentialHandler) Delete(c *gin.Context) {
	operatorID, ok := MustGetOperatorID(c)
	if !ok {
		return
	}
	if err := h.credential.Delete(c.Request.Context(), c.Param("id"), operatorID); err != nil {
		handleCredentialError(c, err)
		return
	}
	response.OK(c, nil)
}

// ── 辅助函数 ──

func toBulkResponse(r *service.BulkResult) dto.BulkRegisterResponse {
	rejected := make([]dto.BulkRejectionResponse, 0, len(r.Rejected))
	for _, rj := range r.Rejected {
		rejected = append(rejected, dto.BulkRejectionResponse{
			Index:      rj.Index,
			FullName:   rj.Identity.FullName,
			ExternalID: rj.Identity.ExternalID,
			Group:      rj.Identity.Group,
			Reason:     rj.Reason,
		})
	}
	return dto.BulkRegisterResponse{
		BatchID:       r.BatchID,
		Label:         r.Label,
		AddedCount:    len(r.Added),
		RejectedCount: len(r.Rejected),
		Added:         dto.ToCredentialResponses(r.Added),
		Rejected:      rejected,
	}
}

func handleCredentialError(c *gin.Context, err error) {
	var dup *service.DuplicateIdentityError
	var partial *service.PartialBatchFailure
	switch {
	case errors.As(err, &dup):
		response.Conflict(c, 12001, dup.Error())
	case errors.Is(err, service.ErrInvalidIdentity):
		response.BadRequest(c, 12002, "姓名、编号、分组均不能为空")
	case errors.Is(err, service.ErrCredentialNotFound):
		response.NotFound(c, 12003, "凭证不存在")
	case errors.As(err, &partial):
		response.ErrorWithDetails(c, http.StatusInternalServerError, 12004,
			"批量导入部分写入，请按批次核对后重试", partial.Error())
	default:
		handleCommonError(c, err)
	}
}
