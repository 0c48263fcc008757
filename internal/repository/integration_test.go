//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gatepass/internal/model"
	"gatepass/internal/repository"
	"gatepass/pkg/database"
	pkgerrors "gatepass/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=gatepass password=gatepass_password dbname=gatepass_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 与生产一致，使用 SQL 迁移建表
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "执行迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// newRecord 生成唯一编号的凭证，并在测试结束时清理
func newRecord(t *testing.T, batchID *string) *model.CredentialRecord {
	t.Helper()
	rec := &model.CredentialRecord{
		CredentialID: uuid.NewString(),
		FullName:     "集成测试来宾",
		ExternalID:   fmt.Sprintf("IT-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8]),
		Group:        "IT",
		BatchID:      batchID,
	}
	t.Cleanup(func() {
		testDB.Where("credential_id = ?", rec.CredentialID).Delete(&model.CredentialRecord{})
	})
	return rec
}

// ═══════════════════════════════════════════════════════════
// Test: 唯一索引
// ═══════════════════════════════════════════════════════════

func TestCreate_DuplicateExternalID(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	first := newRecord(t, nil)
	if err := repo.Credential.Create(ctx, first); err != nil {
		t.Fatalf("创建凭证失败: %v", err)
	}

	second := newRecord(t, nil)
	second.ExternalID = first.ExternalID
	err := repo.Credential.Create(ctx, second)
	if !errors.Is(err, pkgerrors.ErrDuplicateKey) {
		t.Fatalf("期望 ErrDuplicateKey，实际 %v", err)
	}
}

func TestCreate_ConcurrentSameExternalID(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	ext := fmt.Sprintf("IT-RACE-%d", time.Now().UnixNano())

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := newRecord(t, nil)
			rec.ExternalID = ext
			err := repo.Credential.Create(ctx, rec)
			if err != nil && !errors.Is(err, pkgerrors.ErrDuplicateKey) {
				t.Errorf("意外错误: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("同一编号期望只成功 1 次，实际 %d 次", created)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: 分组事务
// ═══════════════════════════════════════════════════════════

func TestCommitGroup_SkipsAndWritesLedger(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	existing := newRecord(t, nil)
	if err := repo.Credential.Create(ctx, existing); err != nil {
		t.Fatalf("创建凭证失败: %v", err)
	}

	batchID := uuid.NewString()
	t.Cleanup(func() {
		testDB.Where("batch_id = ?", batchID).Delete(&model.BatchLedgerEntry{})
	})

	clash := newRecord(t, &batchID)
	clash.ExternalID = existing.ExternalID
	fresh := newRecord(t, &batchID)
	ledger := &model.BatchLedgerEntry{BatchID: batchID, Label: "集成测试", CreatedAt: time.Now().UTC()}

	skipped, err := repo.Credential.CommitGroup(ctx, []*model.CredentialRecord{clash, fresh}, ledger)
	if err != nil {
		t.Fatalf("CommitGroup 失败: %v", err)
	}
	if len(skipped) != 1 || skipped[0] != clash.CredentialID {
		t.Fatalf("期望跳过 %s，实际 %v", clash.CredentialID, skipped)
	}

	entry, err := repo.Batch.GetByID(ctx, batchID)
	if err != nil {
		t.Fatalf("查询批次失败: %v", err)
	}
	if entry.MemberCount != 1 {
		t.Errorf("member_count: expected 1, got %d", entry.MemberCount)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: 条件核销
// ═══════════════════════════════════════════════════════════

func TestMarkRedeemed_ConcurrentSingleWinner(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	rec := newRecord(t, nil)
	if err := repo.Credential.Create(ctx, rec); err != nil {
		t.Fatalf("创建凭证失败: %v", err)
	}

	const n = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Credential.MarkRedeemed(ctx, rec.CredentialID, time.Now().UTC(), "")
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case errors.Is(err, pkgerrors.ErrConditionFailed):
			default:
				t.Errorf("意外错误: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("期望只有 1 次核销成功，实际 %d 次", wins)
	}
}

func TestStoreTimeout_TranslatesToUnavailable(t *testing.T) {
	repo := repository.NewRepository(testDB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := repo.Credential.GetByID(ctx, uuid.NewString())
	if !errors.Is(err, pkgerrors.ErrStoreUnavailable) {
		t.Fatalf("期望 ErrStoreUnavailable，实际 %v", err)
	}
}
