package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gatepass/internal/model"
	pkgerrors "gatepass/pkg/errors"
)

// listAllChunkSize 全量扫描时每次从数据库读取的行数
const listAllChunkSize = 500

// CredentialRepository 凭证存储契约
//
// 注册与核销逻辑只通过该接口访问共享存储，不持有任何跨调用的状态副本。
// 所有方法返回的错误已经过 translateErr 翻译。
type CredentialRepository interface {
	GetByID(ctx context.Context, credentialID string) (*model.CredentialRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.CredentialRecord, error)
	// ListExternalIDs 一次性读取全部 external_id（批量导入的查重快照）
	ListExternalIDs(ctx context.Context) ([]string, error)
	// Create 条件创建：external_id 或 credential_id 冲突时返回 ErrDuplicateKey，不写入任何数据
	Create(ctx context.Context, rec *model.CredentialRecord) error
	// CommitGroup 在一个事务内写入一组凭证，可选附带批次记录。
	// 单条凭证因 external_id 已被并发写入占用而跳过时，其 credential_id 出现在返回值中。
	// ledger 非 nil 时：调用前 ledger.MemberCount 为此前各组已写入数量，
	// 本组写入后累加；累加结果为 0 时不写批次记录。
	CommitGroup(ctx context.Context, recs []*model.CredentialRecord, ledger *model.BatchLedgerEntry) (skipped []string, err error)
	// MarkRedeemed 条件更新：仅当 is_redeemed 仍为 false 时置为 true 并写入 redeemed_at，
	// 未命中返回 ErrConditionFailed
	MarkRedeemed(ctx context.Context, credentialID string, at time.Time, operatorID string) error
	List(ctx context.Context, filters *CredentialListFilters, offset, limit int) ([]model.CredentialRecord, int64, error)
	ListAll(ctx context.Context) ([]model.CredentialRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]model.CredentialRecord, error)
	// ListRedeemed 按入场时间升序返回全部已入场记录
	ListRedeemed(ctx context.Context) ([]model.CredentialRecord, error)
	// ListRecentRedeemed 按入场时间倒序返回最近 limit 条
	ListRecentRedeemed(ctx context.Context, limit int) ([]model.CredentialRecord, error)
	CountByStatus(ctx context.Context) (total, redeemed int64, err error)
	// Delete 管理员删除（不在核销并发保证范围内）
	Delete(ctx context.Context, credentialID string) error
}

// CredentialListFilters 凭证列表过滤条件
type CredentialListFilters struct {
	Keyword  string // 匹配姓名或外部编号
	Group    string
	BatchID  string
	Redeemed *bool
}

type credentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepo 创建 CredentialRepository 实例
func NewCredentialRepo(db *gorm.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) GetByID(ctx context.Context, credentialID string) (*model.CredentialRecord, error) {
	var rec model.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		First(&rec).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &rec, nil
}

func (r *credentialRepo) GetByExternalID(ctx context.Context, externalID string) (*model.CredentialRecord, error) {
	var rec model.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&rec).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &rec, nil
}

func (r *credentialRepo) ListExternalIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.CredentialRecord{}).
		Pluck("external_id", &ids).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return ids, nil
}

func (r *credentialRepo) Create(ctx context.Context, rec *model.CredentialRecord) error {
	return translateErr(r.db.WithContext(ctx).Create(rec).Error)
}

func (r *credentialRepo) CommitGroup(ctx context.Context, recs []*model.CredentialRecord, ledger *model.BatchLedgerEntry) ([]string, error) {
	var skipped []string
	var inserted int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skipped, inserted = nil, 0

		for _, rec := range recs {
			// ON CONFLICT DO NOTHING：唯一索引是最终裁决，快照之后被并发占用的编号在此跳过
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				skipped = append(skipped, rec.CredentialID)
				continue
			}
			inserted++
		}

		if ledger == nil {
			return nil
		}
		entry := *ledger
		entry.MemberCount += inserted
		if entry.MemberCount == 0 {
			return nil
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		*ledger = entry
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return skipped, nil
}

func (r *credentialRepo) MarkRedeemed(ctx context.Context, credentialID string, at time.Time, operatorID string) error {
	updates := map[string]interface{}{
		"is_redeemed": true,
		"redeemed_at": at,
		"updated_at":  at,
	}
	if operatorID != "" {
		updates["redeemed_by"] = operatorID
		updates["updated_by"] = operatorID
	}

	res := r.db.WithContext(ctx).
		Model(&model.CredentialRecord{}).
		Where("credential_id = ? AND is_redeemed = ?", credentialID, false).
		Updates(updates)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrConditionFailed
	}
	return nil
}

func (r *credentialRepo) List(ctx context.Context, filters *CredentialListFilters, offset, limit int) ([]model.CredentialRecord, int64, error) {
	var recs []model.CredentialRecord
	var total int64

	db := r.db.WithContext(ctx).Model(&model.CredentialRecord{})

	if filters != nil {
		if kw := strings.TrimSpace(filters.Keyword); kw != "" {
			like := "%" + strings.ToLower(kw) + "%"
			db = db.Where("LOWER(full_name) LIKE ? OR LOWER(external_id) LIKE ?", like, like)
		}
		if filters.Group != "" {
			db = db.Where("group_name = ?", filters.Group)
		}
		if filters.BatchID != "" {
			db = db.Where("batch_id = ?", filters.BatchID)
		}
		if filters.Redeemed != nil {
			db = db.Where("is_redeemed = ?", *filters.Redeemed)
		}
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, translateErr(err)
	}

	if err := db.Offset(offset).Limit(limit).
		Order("created_at DESC").Order("credential_id").
		Find(&recs).Error; err != nil {
		return nil, 0, translateErr(err)
	}

	return recs, total, nil
}

// ListAll 按主键分块全量扫描，避免单次查询读取过多行
func (r *credentialRepo) ListAll(ctx context.Context) ([]model.CredentialRecord, error) {
	var all []model.CredentialRecord
	var chunk []model.CredentialRecord

	err := r.db.WithContext(ctx).
		FindInBatches(&chunk, listAllChunkSize, func(_ *gorm.DB, _ int) error {
			all = append(all, chunk...)
			return nil
		}).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return all, nil
}

func (r *credentialRepo) ListByBatch(ctx context.Context, batchID string) ([]model.CredentialRecord, error) {
	var recs []model.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at").Order("credential_id").
		Find(&recs).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return recs, nil
}

func (r *credentialRepo) ListRedeemed(ctx context.Context) ([]model.CredentialRecord, error) {
	var recs []model.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("is_redeemed = ?", true).
		Order("redeemed_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return recs, nil
}

func (r *credentialRepo) ListRecentRedeemed(ctx context.Context, limit int) ([]model.CredentialRecord, error) {
	var recs []model.CredentialRecord
	err := r.db.WithContext(ctx).
		Where("is_redeemed = ?", true).
		Order("redeemed_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return recs, nil
}

func (r *credentialRepo) CountByStatus(ctx context.Context) (int64, int64, error) {
	var row struct {
		Total    int64
		Redeemed int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.CredentialRecord{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_redeemed THEN 1 ELSE 0 END), 0) AS redeemed").
		Scan(&row).Error
	if err != nil {
		return 0, 0, translateErr(err)
	}
	return row.Total, row.Redeemed, nil
}

func (r *credentialRepo) Delete(ctx context.Context, credentialID string) error {
	res := r.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		Delete(&model.CredentialRecord{})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
