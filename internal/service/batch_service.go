package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gatepass/internal/model"
	"gatepass/internal/repository"
)

var ErrBatchNotFound = errors.New("批次不存在")

// BatchService 批次台账查询接口（只读）
type BatchService interface {
	// ListBatches 按创建时间倒序返回全部批次
	ListBatches(ctx context.Context) ([]model.BatchLedgerEntry, error)
	GetBatch(ctx context.Context, batchID string) (*model.BatchLedgerEntry, error)
	// GetBatchMembers 返回 batch_id 等于 batchID 的全部凭证
	GetBatchMembers(ctx context.Context, batchID string) ([]model.CredentialRecord, error)
}

type batchService struct {
	repo         *repository.Repository
	storeTimeout time.Duration
	logger       *zap.Logger
}

// NewBatchService 创建 BatchService 实例
func NewBatchService(repo *repository.Repository, storeTimeout time.Duration, logger *zap.Logger) BatchService {
	return &batchService{repo: repo, storeTimeout: storeTimeout, logger: logger}
}

func (s *batchService) ListBatches(ctx context.Context) ([]model.BatchLedgerEntry, error) {
	batches, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) ([]model.BatchLedgerEntry, error) {
		return s.repo.Batch.List(ctx)
	})
	if err != nil {
		s.logger.Error("查询批次列表失败", zap.Error(err))
		return nil, err
	}
	return batches, nil
}

func (s *batchService) GetBatch(ctx context.Context, batchID string) (*model.BatchLedgerEntry, error) {
	batch, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) (*model.BatchLedgerEntry, error) {
		return s.repo.Batch.GetByID(ctx, batchID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		s.logger.Error("查询批次失败", zap.String("batch_id", batchID), zap.Error(err))
		return nil, err
	}
	return batch, nil
}

func (s *batchService) GetBatchMembers(ctx context.Context, batchID string) ([]model.CredentialRecord, error) {
	members, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) ([]model.CredentialRecord, error) {
		return s.repo.Credential.ListByBatch(ctx, batchID)
	})
	if err != nil {
		s.logger.Error("查询批次成员失败", zap.String("batch_id", batchID), zap.Error(err))
		return nil, err
	}
	if len(members) > 0 {
		return members, nil
	}

	// 成员为空时区分"批次不存在"与"成员已被管理员删除"
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return members, nil
}
