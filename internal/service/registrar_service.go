package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gatepass/internal/metrics"
	"gatepass/internal/model"
	"gatepass/internal/repository"
	pkgerrors "gatepass/pkg/errors"
)

// ── 登记模块业务错误 ──

var (
	ErrInvalidIdentity   = errors.New("姓名、编号、分组均不能为空")
	ErrDuplicateIdentity = errors.New("该编号已登记")
	// ErrStoreUnavailable 存储不可用；对写操作而言，失败不代表未提交
	ErrStoreUnavailable = pkgerrors.ErrStoreUnavailable
)

// DuplicateIdentityError 外部编号冲突，携带冲突的编号
type DuplicateIdentityError struct {
	ExternalID string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("编号 %s 已登记", e.ExternalID)
}

func (e *DuplicateIdentityError) Unwrap() error { return ErrDuplicateIdentity }

// PartialBatchFailure 批量导入在第一个写入组之后失败：
// 前 CommittedGroups 组（共 CommittedRecords 条）已提交，其余状态未知，需要人工核对
type PartialBatchFailure struct {
	BatchID          string
	CommittedGroups  int
	TotalGroups      int
	CommittedRecords int
	Err              error
}

func (e *PartialBatchFailure) Error() string {
	return fmt.Sprintf("批量导入 %s 在第 %d/%d 个写入组失败，已提交 %d 条记录: %v",
		e.BatchID, e.CommittedGroups+1, e.TotalGroups, e.CommittedRecords, e.Err)
}

func (e *PartialBatchFailure) Unwrap() error { return e.Err }

// 批量导入逐行拒绝原因
const (
	RejectAlreadyRegistered = "already registered"
	RejectDuplicateInImport = "duplicate within import"
	RejectMissingField      = "missing required field"
)

const defaultBatchLabel = "Bulk Import"

// BulkRejection 批量导入中被拒绝的一行
type BulkRejection struct {
	Index    int // 在输入序列中的下标
	Identity model.GuestIdentity
	Reason   string
}

// BulkResult 批量导入结果
// BatchID 为空表示没有任何记录写入，也没有生成批次记录
type BulkResult struct {
	BatchID  string
	Label    string
	Added    []model.CredentialRecord
	Rejected []BulkRejection
}

// RegistrarService 来宾登记业务接口
type RegistrarService interface {
	// RegisterSingle 登记单个来宾；编号冲突返回 *DuplicateIdentityError
	RegisterSingle(ctx context.Context, identity model.GuestIdentity, operatorID string) (*model.CredentialRecord, error)
	// RegisterBulk 批量登记；逐行接受或拒绝，仅存储整体失败时返回 error
	RegisterBulk(ctx context.Context, identities []model.GuestIdentity, label, operatorID string) (*BulkResult, error)
}

type registrarService struct {
	repo           *repository.Repository
	storeTimeout   time.Duration
	bulkWriteLimit int
	metrics        *metrics.Metrics
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
}

// NewRegistrarService 创建 RegistrarService 实例
func NewRegistrarService(
	repo *repository.Repository,
	storeTimeout time.Duration,
	bulkWriteLimit int,
	m *metrics.Metrics,
	logger *zap.Logger,
) RegistrarService {
	return &registrarService{
		repo:           repo,
		storeTimeout:   storeTimeout,
		bulkWriteLimit: bulkWriteLimit,
		metrics:        m,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// ────────────────────── RegisterSingle ──────────────────────

func (s *registrarService) RegisterSingle(ctx context.Context, identity model.GuestIdentity, operatorID string) (*model.CredentialRecord, error) {
	identity = normalizeIdentity(identity)
	if !identityComplete(identity) {
		return nil, ErrInvalidIdentity
	}

	// 预检查：命中即拒绝，不做任何写入
	existing, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) (*model.CredentialRecord, error) {
		return s.repo.Credential.GetByExternalID(ctx, identity.ExternalID)
	})
	if err == nil && existing != nil {
		s.metrics.ObserveRegistrations("single", "duplicate", 1)
		return nil, &DuplicateIdentityError{ExternalID: identity.ExternalID}
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.metrics.ObserveStoreError("get_by_external_id")
		s.logger.Error("查询编号失败", zap.String("external_id", identity.ExternalID), zap.Error(err))
		return nil, err
	}

	rec := s.newRecord(identity, nil, operatorID)

	// 唯一索引是最终裁决：预检查之后被并发登记抢先时，这里返回 ErrDuplicateKey
	err = storeExec(ctx, s.storeTimeout, func(ctx context.Context) error {
		return s.repo.Credential.Create(ctx, rec)
	})
	if err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicateKey) {
			s.metrics.ObserveRegistrations("single", "duplicate", 1)
			return nil, &DuplicateIdentityError{ExternalID: identity.ExternalID}
		}
		s.metrics.ObserveStoreError("create")
		s.logger.Error("写入凭证失败",
			zap.String("credential_id", rec.CredentialID),
			zap.String("external_id", identity.ExternalID),
			zap.Error(err))
		return nil, err
	}

	s.metrics.ObserveRegistrations("single", "created", 1)
	s.logger.Info("来宾登记成功",
		zap.String("credential_id", rec.CredentialID),
		zap.String("external_id", rec.ExternalID))
	return rec, nil
}

// ────────────────────── RegisterBulk ──────────────────────

func (s *registrarService) RegisterBulk(ctx context.Context, identities []model.GuestIdentity, label, operatorID string) (*BulkResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultBatchLabel
	}
	result := &BulkResult{Label: label}

	// 1. 一次性读取已登记编号快照
	existingIDs, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) ([]string, error) {
		return s.repo.Credential.ListExternalIDs(ctx)
	})
	if err != nil {
		s.metrics.ObserveStoreError("list_external_ids")
		s.metrics.ObserveBulkImport("failed")
		s.logger.Error("读取已登记编号失败", zap.Error(err))
		return nil, err
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	// 2. 生成批次 ID
	batchID := s.newID()

	// 3. 逐行判定：先比对存储快照，再比对本次导入中已接受的编号
	type accepted struct {
		index  int
		record *model.CredentialRecord
	}
	var queue []accepted
	seen := make(map[string]struct{}, len(identities))

	for i, raw := range identities {
		identity := normalizeIdentity(raw)
		switch {
		case !identityComplete(identity):
			result.Rejected = append(result.Rejected, BulkRejection{Index: i, Identity: identity, Reason: RejectMissingField})
		case contains(existing, identity.ExternalID):
			result.Rejected = append(result.Rejected, BulkRejection{Index: i, Identity: identity, Reason: RejectAlreadyRegistered})
		case contains(seen, identity.ExternalID):
			result.Rejected = append(result.Rejected, BulkRejection{Index: i, Identity: identity, Reason: RejectDuplicateInImport})
		default:
			seen[identity.ExternalID] = struct{}{}
			queue = append(queue, accepted{index: i, record: s.newRecord(identity, &batchID, operatorID)})
		}
	}

	// 4. 全部被拒绝：不写入任何数据
	if len(queue) == 0 {
		s.metrics.ObserveRegistrations("bulk", "rejected", len(result.Rejected))
		s.metrics.ObserveBulkImport("empty")
		s.logger.Info("批量导入无可写入记录",
			zap.String("label", label),
			zap.Int("rejected", len(result.Rejected)))
		return result, nil
	}

	// 5. 分组写入；批次记录随最后一组提交
	groupSize := s.bulkWriteLimit - 1
	if groupSize < 1 {
		groupSize = 1
	}
	totalGroups := (len(queue) + groupSize - 1) / groupSize
	ledger := &model.BatchLedgerEntry{
		BatchID:   batchID,
		Label:     label,
		CreatedAt: s.now(),
	}
	if operatorID != "" {
		ledger.CreatedBy = &operatorID
	}

	skipped := make(map[string]struct{})
	committed := 0

	for g := 0; g < totalGroups; g++ {
		start := g * groupSize
		end := start + groupSize
		if end > len(queue) {
			end = len(queue)
		}

		group := make([]*model.CredentialRecord, 0, end-start)
		for _, a := range queue[start:end] {
			group = append(group, a.record)
		}

		var groupLedger *model.BatchLedgerEntry
		if g == totalGroups-1 {
			ledger.MemberCount = committed
			groupLedger = ledger
		}

		groupSkipped, err := storeQuery(ctx, s.storeTimeout, func(ctx context.Context) ([]string, error) {
			return s.repo.Credential.CommitGroup(ctx, group, groupLedger)
		})
		if err != nil {
			s.metrics.ObserveStoreError("commit_group")
			if g == 0 {
				s.metrics.ObserveBulkImport("failed")
				s.logger.Error("批量导入写入失败",
					zap.String("batch_id", batchID),
					zap.Int("groups", totalGroups),
					zap.Error(err))
				return nil, err
			}
			s.metrics.ObserveBulkImport("partial")
			s.logger.Error("批量导入部分写入失败，需要人工核对",
				zap.String("batch_id", batchID),
				zap.Int("committed_groups", g),
				zap.Int("total_groups", totalGroups),
				zap.Int("committed_records", committed),
				zap.Error(err))
			return nil, &PartialBatchFailure{
				BatchID:          batchID,
				CommittedGroups:  g,
				TotalGroups:      totalGroups,
				CommittedRecords: committed,
				Err:              err,
			}
		}

		for _, id := range groupSkipped {
			skipped[id] = struct{}{}
		}
		committed += len(group) - len(groupSkipped)
	}

	// 写入阶段被并发登记抢占的编号，按 "already registered" 计入拒绝列表
	for _, a := range queue {
		if _, ok := skipped[a.record.CredentialID]; ok {
			result.Rejected = append(result.Rejected, BulkRejection{
				Index:    a.index,
				Identity: a.record.Identity(),
				Reason:   RejectAlreadyRegistered,
			})
			continue
		}
		result.Added = append(result.Added, *a.record)
	}
	sort.SliceStable(result.Rejected, func(i, j int) bool {
		return result.Rejected[i].Index < result.Rejected[j].Index
	})

	if len(result.Added) > 0 {
		result.BatchID = batchID
		s.metrics.ObserveBulkImport("committed")
	} else {
		s.metrics.ObserveBulkImport("empty")
	}
	s.metrics.ObserveRegistrations("bulk", "created", len(result.Added))
	s.metrics.ObserveRegistrations("bulk", "rejected", len(result.Rejected))

	s.logger.Info("批量导入完成",
		zap.String("batch_id", result.BatchID),
		zap.String("label", label),
		zap.Int("added", len(result.Added)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("groups", totalGroups))

	return result, nil
}

// ── 内部辅助方法 ──

func (s *registrarService) newRecord(identity model.GuestIdentity, batchID *string, operatorID string) *model.CredentialRecord {
	now := s.now()
	rec := &model.CredentialRecord{
		CredentialID: s.newID(),
		FullName:     identity.FullName,
		ExternalID:   identity.ExternalID,
		Group:        identity.Group,
		BatchID:      batchID,
		IsRedeemed:   false,
		BaseModel:    model.BaseModel{CreatedAt: now, UpdatedAt: now},
	}
	if operatorID != "" {
		rec.CreatedBy = &operatorID
	}
	return rec
}

func normalizeIdentity(identity model.GuestIdentity) model.GuestIdentity {
	return model.GuestIdentity{
		FullName:   strings.TrimSpace(identity.FullName),
		ExternalID: strings.TrimSpace(identity.ExternalID),
		Group:      strings.TrimSpace(identity.Group),
	}
}

func identityComplete(identity model.GuestIdentity) bool {
	return identity.FullName != "" && identity.ExternalID != "" && identity.Group != ""
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
