package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gatepass/internal/metrics"
	"gatepass/internal/model"
	"gatepass/internal/repository"
	pkgerrors "gatepass/pkg/errors"
	"gatepass/pkg/qrpayload"
)

// RedemptionStatus 核销结果
type RedemptionStatus string

const (
	StatusAccepted        RedemptionStatus = "accepted"
	StatusAlreadyRedeemed RedemptionStatus = "already_redeemed"
	StatusUnknown         RedemptionStatus = "unknown"
	StatusMalformed       RedemptionStatus = "malformed"
)

// maxCredentialIDLen 凭证 ID 的最大长度
const maxCredentialIDLen = 128

// RedemptionOutcome 一次扫码的判定结果
// 已入场、未知、格式错误都是正常结果而非 error
type RedemptionOutcome struct {
	Status RedemptionStatus
	// Record 在 Accepted 与 AlreadyRedeemed 时非 nil
	Record *model.CredentialRecord
	// RedeemedAt Accepted 时为本次入场时间，AlreadyRedeemed 时为首次入场时间
	RedeemedAt *time.Time
}

// RedemptionService 入场核销业务接口
type RedemptionService interface {
	// Redeem 核销凭证；同一凭证无论并发多少次，至多一次返回 Accepted
	Redeem(ctx context.Context, credentialID, operatorID string) (*RedemptionOutcome, error)
	// RedeemPayload 先解码二维码文本再核销
	RedeemPayload(ctx context.Context, raw, operatorID string) (*RedemptionOutcome, error)
}

type redemptionService struct {
	repo          *repository.Repository
	storeTimeout  time.Duration
	schemaVersion int
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewRedemptionService 创建 RedemptionService 实例
func NewRedemptionService(
	repo *repository.Repository,
	storeTimeout time.Duration,
	schemaVersion int,
	m *metrics.Metrics,
	logger *zap.Logger,
) RedemptionService {
	return &redemptionService{
		repo:          repo,
		storeTimeout:  storeTimeout,
		schemaVersion: schemaVersion,
		metrics:       m,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ────────────────────── Redeem ──────────────────────

func (s *redemptionService) Redeem(ctx context.Context, credentialID, operatorID string) (*RedemptionOutcome, error) {
	if !wellFormedCredentialID(credentialID) {
		return s.finish(&RedemptionOutcome{Status: StatusMalformed}), nil
	}

	rec, err := s.get(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return s.finish(&RedemptionOutcome{Status: StatusUnknown}), nil
	}
	if rec.IsRedeemed {
		return s.finish(&RedemptionOutcome{
			Status:     StatusAlreadyRedeemed,
			Record:     rec,
			RedeemedAt: rec.RedeemedAt,
		}), nil
	}

	// 条件更新是唯一的裁决点：读到未入场并不代表能入场
	at := s.now()
	err = storeExec(ctx, s.storeTimeout, func(ctx context.Context) error {
		return s.repo.Credential.MarkRedeemed(ctx, credentialID, at, operatorID)
	})
	switch {
	case err == nil:
		rec.IsRedeemed = true
		rec.RedeemedAt = &at
		if operatorID != "" {
			rec.RedeemedBy = &operatorID
		}
		s.logger.Info("凭证核销成功",
			zap.String("credential_id", credentialID),
			zap.String("operator_id", operatorID))
		return s.finish(&RedemptionOutcome{Status: StatusAccepted, Record: rec, RedeemedAt: &at}), nil

	case errors.Is(err, pkgerrors.ErrConditionFailed):
		// 并发核销抢先：重新读取以返回首次入场时间
		winner, err := s.get(ctx, credentialID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return s.finish(&RedemptionOutcome{Status: StatusUnknown}), nil
		}
		s.logger.Info("凭证已被并发核销", zap.String("credential_id", credentialID))
		return s.finish(&RedemptionOutcome{
			Status:     StatusAlreadyRedeemed,
			Record:     winner,
			RedeemedAt: winner.RedeemedAt,
		}), nil

	default:
		s.metrics.ObserveStoreError("mark_redeemed")
		s.logger.Error("核销写入失败", zap.String("credential_id", credentialID), zap.Error(err))
		return nil, err
	}
}

// ────────────────────── RedeemPayload ──────────────────────

func (s *redemptionService) RedeemPayload(ctx context.Context, raw, operatorID string) (*RedemptionOutcome, error) {
	p, err := qrpayload.Decode(raw)
	if err != nil {
		return s.finish(&RedemptionOutcome{Status: StatusMalformed}), nil
	}
	// 版本号缺省（0）视为当前版本；高于当前版本的二维码无法识别
	if p.Version < 0 || (s.schemaVersion > 0 && p.Version > s.schemaVersion) {
		s.logger.Warn("二维码版本不受支持", zap.Int("version", p.Version))
		return s.finish(&RedemptionOutcome{Status: StatusMalformed}), nil
	}
	return s.Redeem(ctx, p.ID, operatorID)
}

// ── 内部辅助方法 ──

// get 读取凭证；不存在时返回 (nil, nil)
func (s *redemptionService) get(ctx context.Context, credentialID string) (*model.CredentialRecord, error) {
	rec, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) (*model.CredentialRecord, error) {
		return s.repo.Credential.GetByID(ctx, credentialID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.metrics.ObserveStoreError("get_by_id")
		s.logger.Error("查询凭证失败", zap.String("credential_id", credentialID), zap.Error(err))
		return nil, err
	}
	return rec, nil
}

func (s *redemptionService) finish(out *RedemptionOutcome) *RedemptionOutcome {
	s.metrics.ObserveRedemption(string(out.Status))
	return out
}

// wellFormedCredentialID 非空、不超过 128 字符、仅含 [A-Za-z0-9_-]
func wellFormedCredentialID(id string) bool {
	if id == "" || len(id) > maxCredentialIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
