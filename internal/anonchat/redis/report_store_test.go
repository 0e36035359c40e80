package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/valkey-io/valkey-go"
)

func newTestReportStore(t *testing.T, reportsPerLevel, baseBanHours int) (*ReportStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{mr.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	if err != nil {
		t.Fatalf("failed to create valkey client: %v", err)
	}
	t.Cleanup(client.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReportStore(client, logger, reportsPerLevel, baseBanHours), mr
}

func TestReportStore_Block_IsSymmetric(t *testing.T) {
	store, _ := newTestReportStore(t, 3, 1)
	ctx := context.Background()

	if err := store.Block(ctx, "alice", "bob"); err != nil {
		t.Fatalf("block failed: %v", err)
	}

	if blocked, _ := store.IsBlocked(ctx, "alice", "bob"); !blocked {
		t.Fatal("alice should block bob")
	}
	if blocked, _ := store.IsBlocked(ctx, "bob", "alice"); !blocked {
		t.Fatal("bob should block alice")
	}
	if blocked, _ := store.IsBlocked(ctx, "alice", "carol"); blocked {
		t.Fatal("unrelated pair must not be blocked")
	}
}

func TestReportStore_Report_DeduplicatesReporter(t *testing.T) {
	store, _ := newTestReportStore(t, 3, 1)
	ctx := context.Background()

	out, err := store.Report(ctx, "alice", "mallory")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if out.Duplicate || out.Banned {
		t.Fatalf("first report: unexpected outcome %+v", out)
	}

	out, err = store.Report(ctx, "alice", "mallory")
	if err != nil {
		t.Fatalf("repeat report failed: %v", err)
	}
	if !out.Duplicate {
		t.Fatal("repeat report by same reporter must be a duplicate")
	}
}

func TestReportStore_Report_EscalatesBan(t *testing.T) {
	store, _ := newTestReportStore(t, 3, 1)
	ctx := context.Background()

	// 3번째 고유 신고자에서 레벨 1 밴 (1시간)
	var out ReportOutcome
	var err error
	for i := 0; i < 3; i++ {
		out, err = store.Report(ctx, fmt.Sprintf("reporter-%d", i), "mallory")
		if err != nil {
			t.Fatalf("report failed: %v", err)
		}
	}
	if !out.Banned || out.Level != 1 || out.Duration != time.Hour {
		t.Fatalf("expected level 1 ban for 1h, got %+v", out)
	}

	banned, remaining, err := store.IsBanned(ctx, "mallory")
	if err != nil {
		t.Fatalf("is banned failed: %v", err)
	}
	if !banned || remaining <= 0 || remaining > time.Hour {
		t.Fatalf("unexpected ban state: banned=%v remaining=%v", banned, remaining)
	}

	// 신고자 집합이 비워져 다음 레벨 집계가 새로 시작된다
	for i := 3; i < 6; i++ {
		out, err = store.Report(ctx, fmt.Sprintf("reporter-%d", i), "mallory")
		if err != nil {
			t.Fatalf("report failed: %v", err)
		}
	}
	if !out.Banned || out.Level != 2 || out.Duration != 2*time.Hour {
		t.Fatalf("expected level 2 ban for 2h, got %+v", out)
	}
}

func TestReportStore_IsBanned_ExpiresWithTTL(t *testing.T) {
	store, mr := newTestReportStore(t, 1, 1)
	ctx := context.Background()

	if _, err := store.Report(ctx, "alice", "mallory"); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if banned, _, _ := store.IsBanned(ctx, "mallory"); !banned {
		t.Fatal("expected active ban")
	}

	mr.FastForward(2 * time.Hour)

	if banned, _, _ := store.IsBanned(ctx, "mallory"); banned {
		t.Fatal("ban should expire with TTL")
	}
}
