package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"gatepass/internal/dto"
	"gatepass/internal/service"
	"gatepass/pkg/response"
)

// ReportHandler 批次、统计与导出 HTTP 处理器
type ReportHandler struct {
	batches service.BatchService
	report  service.ReportService
}

// NewReportHandler 创建 ReportHandler
func NewReportHandler(batches service.BatchService, report service.ReportService) *ReportHandler {
	return &ReportHandler{batches: batches, report: report}
}

// ListBatches 批次列表（新→旧）
// GET /api/v1/batches
func (h *ReportHandler) ListBatches(c *gin.Context) {
	batches, err := h.batches.ListBatches(c.Request.Context())
	if err != nil {
		handleReportError(c, err)
		return
	}
	response.OK(c, dto.ToBatchResponses(batches))
}

// GetBatchMembers 批次成员
// GET /api/v1/batches/:id/members
func (h *ReportHandler) GetBatchMembers(c *gin.Context) {
	batchID := c.Param("id")
	members, err := h.batches.GetBatchMembers(c.Request.Context(), batchID)
	if err != nil {
		handleReportError(c, err)
		return
	}
	response.OK(c, dto.BatchMembersResponse{
		BatchID: batchID,
		Members: dto.ToCredentialResponses(members),
	})
}

// Stats 入场统计
// GET /api/v1/stats
func (h *ReportHandler) Stats(c *gin.Context) {
	stats, err := h.report.Stats(c.Request.Context())
	if err != nil {
		handleReportError(c, err)
		return
	}
	response.OK(c, dto.StatsResponse{
		Total:         stats.Total,
		Entered:       stats.Entered,
		Pending:       stats.Pending,
		RecentEntries: dto.ToCredentialResponses(stats.RecentEntries),
	})
}

// ExportEntryLog 导出入场记录
// GET /api/v1/export/entry-log
func (h *ReportHandler) ExportEntryLog(c *gin.Context) {
	buf, filename, err := h.report.ExportEntryLog(c.Request.Context())
	if err != nil {
		handleReportError(c, err)
		return
	}
	writeXLSX(c, filename, buf.Bytes())
}

// ExportBatch 导出批次凭证清单
// GET /api/v1/export/batches/:id
func (h *ReportHandler) ExportBatch(c *gin.Context) {
	buf, filename, err := h.report.ExportBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleReportError(c, err)
		return
	}
	writeXLSX(c, filename, buf.Bytes())
}

// ── 辅助函数 ──

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeXLSX 设置下载响应头并写入文件内容
func writeXLSX(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func handleReportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBatchNotFound):
		response.NotFound(c, 14001, "批次不存在")
	case errors.Is(err, service.ErrEmptyBatch):
		response.NotFound(c, 14002, "该批次没有凭证")
	case errors.Is(err, service.ErrNoEntries):
		response.NotFound(c, 15001, "暂无入场记录")
	default:
		handleCommonError(c, err)
	}
}
