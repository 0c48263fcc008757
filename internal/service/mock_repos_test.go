package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"gatepass/internal/model"
	"gatepass/internal/repository"
	pkgerrors "gatepass/pkg/errors"
)

// ── 内存存储：凭证与批次共用一把锁，模拟数据库的行级原子性 ──

type mockStore struct {
	mu         sync.Mutex
	records    map[string]*model.CredentialRecord // credential_id → record
	byExternal map[string]string                  // external_id → credential_id
	batches    map[string]*model.BatchLedgerEntry

	// 故障注入
	err          error // 非 nil 时所有调用返回该错误
	failCommitAt int   // 第 N 次 CommitGroup 调用失败（从 1 开始），0 表示不失败
	beforeCommit func(call int)

	commitSizes    []int
	listIDsCalls   int
	markSuccesses  int
	deletedRecords int
}

func newMockStore() *mockStore {
	return &mockStore{
		records:    make(map[string]*model.CredentialRecord),
		byExternal: make(map[string]string),
		batches:    make(map[string]*model.BatchLedgerEntry),
	}
}

// repo 组装只包含内存实现的 Repository 聚合
func (s *mockStore) repo() *repository.Repository {
	return &repository.Repository{
		Credential: &mockCredentialRepo{s},
		Batch:      &mockBatchRepo{s},
		Operator:   newMockOperatorRepo(),
	}
}

// seed 直接写入一条凭证，不经过服务层
func (s *mockStore) seed(rec *model.CredentialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.CredentialID] = &cp
	s.byExternal[rec.ExternalID] = rec.CredentialID
}

func (s *mockStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *mockStore) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *mockStore) insertLocked(rec *model.CredentialRecord) bool {
	if _, ok := s.byExternal[rec.ExternalID]; ok {
		return false
	}
	if _, ok := s.records[rec.CredentialID]; ok {
		return false
	}
	cp := *rec
	s.records[rec.CredentialID] = &cp
	s.byExternal[rec.ExternalID] = rec.CredentialID
	return true
}

// ── Mock CredentialRepository ──

type mockCredentialRepo struct {
	s *mockStore
}

func (m *mockCredentialRepo) GetByID(_ context.Context, credentialID string) (*model.CredentialRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return nil, m.s.err
	}
	if r, ok := m.s.records[credentialID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCredentialRepo) GetByExternalID(_ context.Context, externalID string) (*model.CredentialRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return nil, m.s.err
	}
	if id, ok := m.s.byExternal[externalID]; ok {
		cp := *m.s.records[id]
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCredentialRepo) ListExternalIDs(_ context.Context) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.listIDsCalls++
	if m.s.err != nil {
		return nil, m.s.err
	}
	ids := make([]string, 0, len(m.s.byExternal))
	for ext := range m.s.byExternal {
		ids = append(ids, ext)
	}
	return ids, nil
}

func (m *mockCredentialRepo) Create(_ context.Context, rec *model.CredentialRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return m.s.err
	}
	if !m.s.insertLocked(rec) {
		return pkgerrors.ErrDuplicateKey
	}
	return nil
}

func (m *mockCredentialRepo) CommitGroup(_ context.Context, recs []*model.CredentialRecord, ledger *model.BatchLedgerEntry) ([]string, error) {
	m.s.mu.Lock()
	call := len(m.s.commitSizes) + 1
	hook := m.s.beforeCommit
	m.s.mu.Unlock()

	// 钩子在锁外执行，用于模拟并发写入者抢占编号
	if hook != nil {
		hook(call)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.commitSizes = append(m.s.commitSizes, len(recs))
	if m.s.err != nil {
		return nil, m.s.err
	}
	if m.s.failCommitAt == call {
		return nil, pkgerrors.ErrStoreUnavailable
	}

	var skipped []string
	inserted := 0
	for _, rec := range recs {
		if m.s.insertLocked(rec) {
			inserted++
		} else {
			skipped = append(skipped, rec.CredentialID)
		}
	}
	if ledger != nil {
		entry := *ledger
		entry.MemberCount += inserted
		if entry.MemberCount > 0 {
			m.s.batches[entry.BatchID] = &entry
		}
		*ledger = entry
	}
	return skipped, nil
}

func (m *mockCredentialRepo) MarkRedeemed(_ context.Context, credentialID string, at time.Time, operatorID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return m.s.err
	}
	r, ok := m.s.records[credentialID]
	if !ok || r.IsRedeemed {
		return pkgerrors.ErrConditionFailed
	}
	r.IsRedeemed = true
	t := at
	r.RedeemedAt = &t
	if operatorID != "" {
		op := operatorID
		r.RedeemedBy = &op
	}
	m.s.markSuccesses++
	return nil
}

func (m *mockCredentialRepo) List(_ context.Context, f *repository.CredentialListFilters, offset, limit int) ([]model.CredentialRecord, int64, error) {
	all, err := m.ListAll(context.Background())
	if err != nil {
		return nil, 0, err
	}
	var matched []model.CredentialRecord
	for _, r := range all {
		if f != nil {
			if f.Keyword != "" {
				kw := strings.ToLower(f.Keyword)
				if !strings.Contains(strings.ToLower(r.FullName), kw) && !strings.Contains(strings.ToLower(r.ExternalID), kw) {
					continue
				}
			}
			if f.Group != "" && r.Group != f.Group {
				continue
			}
			if f.BatchID != "" && (r.BatchID == nil || *r.BatchID != f.BatchID) {
				continue
			}
			if f.Redeemed != nil && r.IsRedeemed != *f.Redeemed {
				continue
			}
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExternalID < matched[j].ExternalID })
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *mockCredentialRepo) ListAll(_ context.Context) ([]model.CredentialRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return nil, m.s.err
	}
	out := make([]model.CredentialRecord, 0, len(m.s.records))
	for _, r := range m.s.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockCredentialRepo) ListByBatch(ctx context.Context, batchID string) ([]model.CredentialRecord, error) {
	all, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.CredentialRecord
	for _, r := range all {
		if r.BatchID != nil && *r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockCredentialRepo) ListRedeemed(ctx context.Context) ([]model.CredentialRecord, error) {
	all, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.CredentialRecord
	for _, r := range all {
		if r.IsRedeemed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RedeemedAt.Before(*out[j].RedeemedAt) })
	return out, nil
}

func (m *mockCredentialRepo) ListRecentRedeemed(ctx context.Context, limit int) ([]model.CredentialRecord, error) {
	out, err := m.ListRedeemed(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RedeemedAt.After(*out[j].RedeemedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockCredentialRepo) CountByStatus(ctx context.Context) (int64, int64, error) {
	all, err := m.ListAll(ctx)
	if err != nil {
		return 0, 0, err
	}
	var redeemed int64
	for _, r := range all {
		if r.IsRedeemed {
			redeemed++
		}
	}
	return int64(len(all)), redeemed, nil
}

func (m *mockCredentialRepo) Delete(_ context.Context, credentialID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return m.s.err
	}
	r, ok := m.s.records[credentialID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.s.byExternal, r.ExternalID)
	delete(m.s.records, credentialID)
	m.s.deletedRecords++
	return nil
}

// ── Mock BatchRepository ──

type mockBatchRepo struct {
	s *mockStore
}

func (m *mockBatchRepo) GetByID(_ context.Context, batchID string) (*model.BatchLedgerEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return nil, m.s.err
	}
	if b, ok := m.s.batches[batchID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockBatchRepo) List(_ context.Context) ([]model.BatchLedgerEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.err != nil {
		return nil, m.s.err
	}
	out := make([]model.BatchLedgerEntry, 0, len(m.s.batches))
	for _, b := range m.s.batches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ── Mock OperatorRepository ──

type mockOperatorRepo struct {
	mu        sync.Mutex
	operators map[string]*model.Operator // operator_id → operator
}

func newMockOperatorRepo() *mockOperatorRepo {
	return &mockOperatorRepo{operators: make(map[string]*model.Operator)}
}

func (m *mockOperatorRepo) Create(_ context.Context, op *model.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.operators {
		if o.Username == op.Username {
			return pkgerrors.ErrDuplicateKey
		}
	}
	cp := *op
	m.operators[op.OperatorID] = &cp
	return nil
}

func (m *mockOperatorRepo) GetByID(_ context.Context, id string) (*model.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.operators[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOperatorRepo) GetByUsername(_ context.Context, username string) (*model.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.operators {
		if o.Username == username {
			cp := *o
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockOperatorRepo) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.operators)), nil
}
