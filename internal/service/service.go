package service

import (
	"go.uber.org/zap"

	"gatepass/config"
	"gatepass/internal/metrics"
	"gatepass/internal/repository"
	"gatepass/pkg/jwt"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth       AuthService
	Registrar  RegistrarService
	Redemption RedemptionService
	Credential CredentialService
	Batch      BatchService
	Report     ReportService
	Import     ImportService
}

// NewService 创建 Service 聚合；blacklist 为 nil 时登出仅在客户端生效
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	blacklist TokenBlacklist,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	ci := cfg.CheckIn
	batches := NewBatchService(repo, ci.StoreTimeout, logger)
	return &Service{
		Auth:       NewAuthService(cfg, repo, jwtMgr, blacklist, logger),
		Registrar:  NewRegistrarService(repo, ci.StoreTimeout, ci.BulkWriteLimit, m, logger),
		Redemption: NewRedemptionService(repo, ci.StoreTimeout, ci.QRSchemaVersion, m, logger),
		Credential: NewCredentialService(repo, ci.StoreTimeout, ci.QRSchemaVersion, logger),
		Batch:      batches,
		Report:     NewReportService(repo, batches, ci.StoreTimeout, logger),
		Import:     NewImportService(ci.MaxImportRows, logger),
	}
}
