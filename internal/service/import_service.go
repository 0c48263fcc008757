package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"gatepass/internal/model"
)

// ── 导入模块业务错误 ──

var (
	ErrImportNoData    = errors.New("表格无数据行（第一行为表头）")
	ErrImportBadHeader = errors.New("表头缺少必要列，应包含 Name、Admission No、Class")
	ErrImportTooMany   = errors.New("数据行数超过上限")
)

// ImportService 表格导入接口：只负责把文件解析为来宾身份，不接触存储
type ImportService interface {
	// ParseImportFile 解析第一个工作表，返回来宾身份与批次名称（文件名去掉扩展名）
	ParseImportFile(reader io.Reader, filename string) ([]model.GuestIdentity, string, error)
	// Template 生成导入模板
	Template() (*bytes.Buffer, string, error)
}

type importService struct {
	maxRows int
	logger  *zap.Logger
}

// NewImportService 创建 ImportService 实例
func NewImportService(maxRows int, logger *zap.Logger) ImportService {
	return &importService{maxRows: maxRows, logger: logger}
}

// ────────────────────── ParseImportFile ──────────────────────

func (s *importService) ParseImportFile(reader io.Reader, filename string) ([]model.GuestIdentity, string, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, "", fmt.Errorf("无法解析 Excel 文件: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, "", ErrImportNoData
	}

	// 表头列序不固定，按列名识别
	col := importHeaderIndex(excelRows[0])
	if col.name < 0 || col.externalID < 0 || col.group < 0 {
		return nil, "", ErrImportBadHeader
	}

	var identities []model.GuestIdentity
	for _, row := range excelRows[1:] {
		identity := model.GuestIdentity{
			FullName:   cellAt(row, col.name),
			ExternalID: cellAt(row, col.externalID),
			Group:      cellAt(row, col.group),
		}
		// 跳过全空行；部分缺失的行保留，由登记服务逐行拒绝
		if identity.FullName == "" && identity.ExternalID == "" && identity.Group == "" {
			continue
		}
		identities = append(identities, identity)
	}

	if len(identities) == 0 {
		return nil, "", ErrImportNoData
	}
	if s.maxRows > 0 && len(identities) > s.maxRows {
		return nil, "", fmt.Errorf("%w: %d 行（上限 %d）", ErrImportTooMany, len(identities), s.maxRows)
	}

	label := batchLabelFromFilename(filename)
	s.logger.Info("导入文件解析完成",
		zap.String("filename", filename),
		zap.String("label", label),
		zap.Int("rows", len(identities)))
	return identities, label, nil
}

// ────────────────────── Template ──────────────────────

func (s *importService) Template() (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Template"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetSheetRow(sheet, "A1", &[]interface{}{"Name", "Admission No", "Class"})
	f.SetSheetRow(sheet, "A2", &[]interface{}{"John Doe", "A-101", "10-A"})

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入导入模板失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, "guest_upload_template.xlsx", nil
}

// ── 辅助函数 ──

type importColumns struct {
	name, externalID, group int
}

// importHeaderIndex 识别表头；同一字段出现多列时取第一列
func importHeaderIndex(header []string) importColumns {
	col := importColumns{name: -1, externalID: -1, group: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "student name", "full name", "姓名":
			if col.name < 0 {
				col.name = i
			}
		case "admission number", "admission no", "adm no", "adm", "external id", "学号", "编号":
			if col.externalID < 0 {
				col.externalID = i
			}
		case "class", "grade", "group", "班级", "分组":
			if col.group < 0 {
				col.group = i
			}
		}
	}
	return col
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// batchLabelFromFilename 文件名去掉扩展名作为批次名称，为空时使用默认名称
func batchLabelFromFilename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" {
		return defaultBatchLabel
	}
	label := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if label == "" {
		return defaultBatchLabel
	}
	return label
}
