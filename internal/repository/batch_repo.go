package repository

import (
	"context"

	"gorm.io/gorm"

	"gatepass/internal/model"
)

// BatchRepository 批次记录数据访问接口（只读；写入随 CredentialRepository.CommitGroup 完成）
type BatchRepository interface {
	GetByID(ctx context.Context, batchID string) (*model.BatchLedgerEntry, error)
	// List 按创建时间倒序
	List(ctx context.Context) ([]model.BatchLedgerEntry, error)
}

type batchRepo struct {
	db *gorm.DB
}

// NewBatchRepo 创建 BatchRepository 实例
func NewBatchRepo(db *gorm.DB) BatchRepository {
	return &batchRepo{db: db}
}

func (r *batchRepo) GetByID(ctx context.Context, batchID string) (*model.BatchLedgerEntry, error) {
	var entry model.BatchLedgerEntry
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		First(&entry).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &entry, nil
}

func (r *batchRepo) List(ctx context.Context) ([]model.BatchLedgerEntry, error) {
	var entries []model.BatchLedgerEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return entries, nil
}
