package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"gatepass/internal/metrics"
	"gatepass/internal/model"
	pkgerrors "gatepass/pkg/errors"
	"gatepass/pkg/qrpayload"
)

// ── 测试辅助 ──

func setupTestRedemption(store *mockStore, m *metrics.Metrics) *redemptionService {
	return NewRedemptionService(store.repo(), time.Second, 1, m, zap.NewNop()).(*redemptionService)
}

// ── 端到端：登记 → 核销 → 重复核销 → 未知凭证 ──

func TestRedemptionService_EndToEnd(t *testing.T) {
	store := newMockStore()
	registrar := setupTestRegistrar(store, 400)
	svc := setupTestRedemption(store, nil)
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	rec, err := registrar.RegisterSingle(context.Background(), guest("Ada", "A-1", "10A"), "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.IsRedeemed {
		t.Fatal("new credential must not be redeemed")
	}

	first, err := svc.Redeem(context.Background(), rec.CredentialID, "gate-1")
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if first.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", first.Status)
	}
	if first.RedeemedAt == nil || !first.RedeemedAt.Equal(fixed) {
		t.Errorf("expected redeemed_at %v, got %v", fixed, first.RedeemedAt)
	}

	svc.now = func() time.Time { return fixed.Add(time.Hour) }
	second, err := svc.Redeem(context.Background(), rec.CredentialID, "gate-2")
	if err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if second.Status != StatusAlreadyRedeemed {
		t.Fatalf("expected already_redeemed, got %s", second.Status)
	}
	if second.RedeemedAt == nil || !second.RedeemedAt.Equal(fixed) {
		t.Errorf("expected original timestamp %v, got %v", fixed, second.RedeemedAt)
	}
	if second.Record == nil || second.Record.FullName != "Ada" {
		t.Error("already_redeemed outcome must carry the record")
	}

	unknown, err := svc.Redeem(context.Background(), "nonexistent-id", "gate-1")
	if err != nil {
		t.Fatalf("unknown redeem: %v", err)
	}
	if unknown.Status != StatusUnknown {
		t.Errorf("expected unknown, got %s", unknown.Status)
	}
}

func TestRedemptionService_ConcurrentRedeem(t *testing.T) {
	store := newMockStore()
	seedCredential(store, "cred-1", "Ada", "A-1", "10A")
	svc := setupTestRedemption(store, nil)

	const n = 1000
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		already  int
		stamps   = make(map[time.Time]struct{})
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := svc.Redeem(context.Background(), "cred-1", "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			switch out.Status {
			case StatusAccepted:
				accepted++
			case StatusAlreadyRedeemed:
				already++
			default:
				t.Errorf("unexpected status %s", out.Status)
				return
			}
			if out.RedeemedAt == nil {
				t.Error("redeemed_at must be set")
				return
			}
			stamps[*out.RedeemedAt] = struct{}{}
		}()
	}
	close(start)
	wg.Wait()

	if accepted != 1 {
		t.Errorf("expected exactly 1 accepted, got %d", accepted)
	}
	if already != n-1 {
		t.Errorf("expected %d already_redeemed, got %d", n-1, already)
	}
	if len(stamps) != 1 {
		t.Errorf("all outcomes must report the single entry time, got %d distinct", len(stamps))
	}
	if store.markSuccesses != 1 {
		t.Errorf("expected exactly one successful conditional update, got %d", store.markSuccesses)
	}
}

func TestRedemptionService_Malformed(t *testing.T) {
	store := newMockStore()
	svc := setupTestRedemption(store, nil)

	cases := []string{
		"",
		"has space",
		"semi;colon",
		"{\"id\":\"x\"}",
		strings.Repeat("a", 129),
	}
	for _, id := range cases {
		out, err := svc.Redeem(context.Background(), id, "")
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", id, err)
		}
		if out.Status != StatusMalformed {
			t.Errorf("%q: expected malformed, got %s", id, out.Status)
		}
	}
}

func TestRedemptionService_MalformedNeverTouchesStore(t *testing.T) {
	store := newMockStore()
	store.err = pkgerrors.ErrStoreUnavailable
	svc := setupTestRedemption(store, nil)

	out, err := svc.Redeem(context.Background(), "bad id!", "")
	if err != nil {
		t.Fatalf("malformed input must not reach the store: %v", err)
	}
	if out.Status != StatusMalformed {
		t.Errorf("expected malformed, got %s", out.Status)
	}
}

func TestRedemptionService_StoreUnavailable(t *testing.T) {
	store := newMockStore()
	store.err = pkgerrors.ErrStoreUnavailable
	svc := setupTestRedemption(store, nil)

	_, err := svc.Redeem(context.Background(), "cred-1", "")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRedemptionService_MonotonicState(t *testing.T) {
	store := newMockStore()
	seedCredential(store, "cred-1", "Ada", "A-1", "10A")
	svc := setupTestRedemption(store, nil)
	repo := store.repo()

	check := func(stage string) *model.CredentialRecord {
		rec, err := repo.Credential.GetByID(context.Background(), "cred-1")
		if err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
		if rec.IsRedeemed != (rec.RedeemedAt != nil) {
			t.Fatalf("%s: is_redeemed=%v but redeemed_at=%v", stage, rec.IsRedeemed, rec.RedeemedAt)
		}
		return rec
	}

	if check("before").IsRedeemed {
		t.Fatal("expected not redeemed before scanning")
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.Redeem(context.Background(), "cred-1", ""); err != nil {
			t.Fatal(err)
		}
		if !check("after scan").IsRedeemed {
			t.Fatal("redeemed flag went back to false")
		}
	}
}

// ── RedeemPayload 测试 ──

func TestRedemptionService_RedeemPayload(t *testing.T) {
	store := newMockStore()
	seedCredential(store, "cred-1", "Ada", "A-1", "10A")
	svc := setupTestRedemption(store, nil)

	payload, err := qrpayload.Encode("cred-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	out, err := svc.RedeemPayload(context.Background(), payload, "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusAccepted {
		t.Errorf("expected accepted, got %s", out.Status)
	}
}

func TestRedemptionService_RedeemPayload_Rejects(t *testing.T) {
	store := newMockStore()
	seedCredential(store, "cred-1", "Ada", "A-1", "10A")
	svc := setupTestRedemption(store, nil)

	cases := map[string]string{
		"not json":       "cred-1",
		"missing id":     `{"v":1}`,
		"future version": `{"id":"cred-1","v":2}`,
		"bad id chars":   `{"id":"cred 1","v":1}`,
	}
	for name, raw := range cases {
		out, err := svc.RedeemPayload(context.Background(), raw, "")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if out.Status != StatusMalformed {
			t.Errorf("%s: expected malformed, got %s", name, out.Status)
		}
	}

	// 版本缺省视为当前版本
	out, err := svc.RedeemPayload(context.Background(), `{"id":"cred-1"}`, "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusAccepted {
		t.Errorf("expected accepted for versionless payload, got %s", out.Status)
	}
}

func TestRedemptionService_Metrics(t *testing.T) {
	store := newMockStore()
	seedCredential(store, "cred-1", "Ada", "A-1", "10A")
	m := metrics.New(prometheus.NewRegistry())
	svc := setupTestRedemption(store, m)

	svc.Redeem(context.Background(), "cred-1", "")
	svc.Redeem(context.Background(), "cred-1", "")
	svc.Redeem(context.Background(), "missing", "")
	svc.Redeem(context.Background(), "", "")

	for outcome, want := range map[string]float64{
		"accepted":         1,
		"already_redeemed": 1,
		"unknown":          1,
		"malformed":        1,
	} {
		if got := testutil.ToFloat64(m.Redemptions.WithLabelValues(outcome)); got != want {
			t.Errorf("%s: expected %v, got %v", outcome, want, got)
		}
	}
}
