package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gatepass/internal/model"
	"gatepass/internal/repository"
)

// ── 报表模块业务错误 ──

var (
	ErrNoEntries          = errors.New("暂无入场记录")
	ErrEmptyBatch         = errors.New("该批次没有凭证")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// recentEntriesLimit 统计面板展示的最近入场条数
const recentEntriesLimit = 5

// Stats 入场统计
type Stats struct {
	Total         int64
	Entered       int64
	Pending       int64
	RecentEntries []model.CredentialRecord
}

// ReportService 统计与导出接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置响应头后写入 Response
type ReportService interface {
	Stats(ctx context.Context) (*Stats, error)
	// ExportEntryLog 导出入场记录，按入场时间升序
	ExportEntryLog(ctx context.Context) (*bytes.Buffer, string, error)
	// ExportBatch 导出某批次的凭证清单
	ExportBatch(ctx context.Context, batchID string) (*bytes.Buffer, string, error)
}

type reportService struct {
	repo         *repository.Repository
	batches      BatchService
	storeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewReportService 创建 ReportService 实例
func NewReportService(repo *repository.Repository, batches BatchService, storeTimeout time.Duration, logger *zap.Logger) ReportService {
	return &reportService{
		repo:         repo,
		batches:      batches,
		storeTimeout: storeTimeout,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ────────────────────── Stats ──────────────────────

func (s *reportService) Stats(ctx context.Context) (*Stats, error) {
	var (
		total, entered int64
		recent         []model.CredentialRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return storeExec(gctx, s.storeTimeout, func(ctx context.Context) error {
			var err error
			total, entered, err = s.repo.Credential.CountByStatus(ctx)
			return err
		})
	})
	g.Go(func() error {
		return storeExec(gctx, s.storeTimeout, func(ctx context.Context) error {
			var err error
			recent, err = s.repo.Credential.ListRecentRedeemed(ctx, recentEntriesLimit)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("统计入场数据失败", zap.Error(err))
		return nil, err
	}

	return &Stats{
		Total:         total,
		Entered:       entered,
		Pending:       total - entered,
		RecentEntries: recent,
	}, nil
}

// ────────────────────── ExportEntryLog ──────────────────────
//
// 列：序号 | 姓名 | 编号 | 分组 | 入场时间 | 入场日期 | 凭证 ID

func (s *reportService) ExportEntryLog(ctx context.Context) (*bytes.Buffer, string, error) {
	entries, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) ([]model.CredentialRecord, error) {
		return s.repo.Credential.ListRedeemed(ctx)
	})
	if err != nil {
		s.logger.Error("查询入场记录失败", zap.Error(err))
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", ErrNoEntries
	}

	header := []string{"Entry #", "Name", "External ID", "Group", "Entry Time", "Entry Date", "Credential ID"}
	rows := make([][]interface{}, 0, len(entries))
	for i, rec := range entries {
		var at time.Time
		if rec.RedeemedAt != nil {
			at = rec.RedeemedAt.UTC()
		}
		rows = append(rows, []interface{}{
			i + 1,
			rec.FullName,
			rec.ExternalID,
			rec.Group,
			at.Format("15:04:05"),
			at.Format("2006-01-02"),
			rec.CredentialID,
		})
	}

	buf, err := s.writeSheet("Attendance Log", header, rows)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("Attendance_Log_%s.xlsx", s.now().Format("2006-01-02"))
	return buf, filename, nil
}

// ────────────────────── ExportBatch ──────────────────────
//
// 列：姓名 | 编号 | 分组 | 凭证 ID | 状态 | 入场时间

func (s *reportService) ExportBatch(ctx context.Context, batchID string) (*bytes.Buffer, string, error) {
	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, "", err
	}
	members, err := s.batches.GetBatchMembers(ctx, batchID)
	if err != nil {
		return nil, "", err
	}
	if len(members) == 0 {
		return nil, "", ErrEmptyBatch
	}

	header := []string{"Name", "External ID", "Group", "Credential ID", "Status", "Entry Time"}
	rows := make([][]interface{}, 0, len(members))
	for _, rec := range members {
		status, entered := "Pending", ""
		if rec.IsRedeemed && rec.RedeemedAt != nil {
			status = "Entered"
			entered = rec.RedeemedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []interface{}{
			rec.FullName,
			rec.ExternalID,
			rec.Group,
			rec.CredentialID,
			status,
			entered,
		})
	}

	buf, err := s.writeSheet("Tickets", header, rows)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("%s_Tickets.xlsx", sanitizeFilename(batch.Label))
	return buf, filename, nil
}

// ── 内部辅助方法 ──

func (s *reportService) writeSheet(sheetName string, header []string, rows [][]interface{}) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		s.logger.Error("创建工作表失败", zap.Error(err))
		return nil, ErrExportGenerateFail
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range header {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, c, h)
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	f.SetCellStyle(sheetName, first, last, headerStyle)

	for r, row := range rows {
		for i, v := range row {
			c, _ := excelize.CoordinatesToCellName(i+1, r+2)
			f.SetCellValue(sheetName, c, v)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	f.SetColWidth(sheetName, "A", lastCol, 20)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, ErrExportGenerateFail
	}
	return buf, nil
}

// sanitizeFilename 去掉文件名中不安全的字符
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Batch"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
