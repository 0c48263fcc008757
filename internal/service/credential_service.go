package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gatepass/internal/model"
	"gatepass/internal/repository"
	"gatepass/pkg/qrpayload"
)

var ErrCredentialNotFound = errors.New("凭证不存在")

// CredentialService 凭证查询与管理接口
type CredentialService interface {
	Get(ctx context.Context, credentialID string) (*model.CredentialRecord, error)
	// ListRecords 分页查询，返回当前页与总数
	ListRecords(ctx context.Context, filters *repository.CredentialListFilters, offset, limit int) ([]model.CredentialRecord, int64, error)
	// ListAllRecords 全量读取，顺序不作保证
	ListAllRecords(ctx context.Context) ([]model.CredentialRecord, error)
	// Delete 管理员删除；删除后该编号可重新登记
	Delete(ctx context.Context, credentialID, operatorID string) error
	// Payload 返回凭证二维码承载的文本
	Payload(credentialID string) (string, error)
	// QRCode 渲染凭证二维码 PNG
	QRCode(ctx context.Context, credentialID string, size int) ([]byte, error)
}

type credentialService struct {
	repo          *repository.Repository
	storeTimeout  time.Duration
	schemaVersion int
	logger        *zap.Logger
}

// NewCredentialService 创建 CredentialService 实例
func NewCredentialService(repo *repository.Repository, storeTimeout time.Duration, schemaVersion int, logger *zap.Logger) CredentialService {
	return &credentialService{
		repo:          repo,
		storeTimeout:  storeTimeout,
		schemaVersion: schemaVersion,
		logger:        logger,
	}
}

func (s *credentialService) Get(ctx context.Context, credentialID string) (*model.CredentialRecord, error) {
	rec, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) (*model.CredentialRecord, error) {
		return s.repo.Credential.GetByID(ctx, credentialID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		s.logger.Error("查询凭证失败", zap.String("credential_id", credentialID), zap.Error(err))
		return nil, err
	}
	return rec, nil
}

func (s *credentialService) ListRecords(ctx context.Context, filters *repository.CredentialListFilters, offset, limit int) ([]model.CredentialRecord, int64, error) {
	type page struct {
		items []model.CredentialRecord
		total int64
	}
	p, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) (page, error) {
		items, total, err := s.repo.Credential.List(ctx, filters, offset, limit)
		return page{items: items, total: total}, err
	})
	if err != nil {
		s.logger.Error("查询凭证列表失败", zap.Error(err))
		return nil, 0, err
	}
	return p.items, p.total, nil
}

func (s *credentialService) ListAllRecords(ctx context.Context) ([]model.CredentialRecord, error) {
	records, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) ([]model.CredentialRecord, error) {
		return s.repo.Credential.ListAll(ctx)
	})
	if err != nil {
		s.logger.Error("全量读取凭证失败", zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *credentialService) Delete(ctx context.Context, credentialID, operatorID string) error {
	err := storeExec(ctx, s.storeTimeout, func(ctx context.Context) error {
		return s.repo.Credential.Delete(ctx, credentialID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCredentialNotFound
		}
		s.logger.Error("删除凭证失败", zap.String("credential_id", credentialID), zap.Error(err))
		return err
	}
	s.logger.Warn("凭证已被管理员删除",
		zap.String("credential_id", credentialID),
		zap.String("operator_id", operatorID))
	return nil
}

func (s *credentialService) Payload(credentialID string) (string, error) {
	return qrpayload.Encode(credentialID, s.schemaVersion)
}

func (s *credentialService) QRCode(ctx context.Context, credentialID string, size int) ([]byte, error) {
	// 只为存在的凭证出码
	if _, err := s.Get(ctx, credentialID); err != nil {
		return nil, err
	}
	payload, err := s.Payload(credentialID)
	if err != nil {
		return nil, err
	}
	png, err := qrpayload.PNG(payload, size)
	if err != nil {
		s.logger.Error("生成二维码失败", zap.String("credential_id", credentialID), zap.Error(err))
		return nil, err
	}
	return png, nil
}
