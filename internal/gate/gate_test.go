package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

type fakeHistory struct {
	nudges     int
	spent      decimal.Decimal
	err        error
	sinceSeen  time.Time
	weekStart  time.Time
	nudgeCalls int
	spendCalls int
}

func (f *fakeHistory) CountNudges(ctx context.Context, userID int64, tier plan.Tier, since time.Time) (int, error) {
	f.nudgeCalls++
	f.sinceSeen = since
	return f.nudges, f.err
}

func (f *fakeHistory) SumSpending(ctx context.Context, userID int64, since, until time.Time) (decimal.Decimal, error) {
	f.spendCalls++
	f.weekStart = since
	return f.spent, f.err
}

// Wednesday 2025-06-11 15:30 UTC.
var wednesday = time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)

func checkReq(tier plan.Tier, intent string) CheckRequest {
	return CheckRequest{UserID: 1, Tier: tier, Policy: plan.Resolve(tier), Intent: intent, Text: intent}
}

func TestQuotaBoundary(t *testing.T) {
	ctx := context.Background()
	h := &fakeHistory{nudges: 19}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))

	sc, err := g.Check(ctx, checkReq(plan.TierEssential, "new shoes"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc != nil {
		t.Fatalf("19 nudges should pass the essential quota, got %+v", sc)
	}

	h.nudges = 20
	sc, err = g.Check(ctx, checkReq(plan.TierEssential, "new shoes"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc == nil || sc.Kind != KindQuota {
		t.Fatalf("20 nudges should hit the essential quota, got %+v", sc)
	}
	want := "[Essential] Monthly nudge limit reached. Consider upgrading for more support."
	if sc.Message != want {
		t.Errorf("message = %q, want %q", sc.Message, want)
	}
	if sc.Record != nil {
		t.Error("quota short-circuit must not carry a record")
	}
	if !h.sinceSeen.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("quota window start = %v, want start of month", h.sinceSeen)
	}
}

// The quota check reads a count and compares it without reserving a slot, so
// two requests that both observe limit-1 both pass. The caller then records
// two nudges and the user ends one over quota. This is a known race.
func TestQuotaCheckDoesNotReserve(t *testing.T) {
	ctx := context.Background()
	h := &fakeHistory{nudges: 19}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))

	for i := 0; i < 2; i++ {
		sc, err := g.Check(ctx, checkReq(plan.TierEssential, "new shoes"))
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if sc != nil {
			t.Fatalf("check %d: both concurrent readers of limit-1 pass, got %+v", i+1, sc)
		}
	}
	if h.nudges != 19 {
		t.Errorf("Check must not mutate history, count = %d", h.nudges)
	}
}

func TestQuotaPrestigeLimit(t *testing.T) {
	h := &fakeHistory{nudges: 59}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))
	if sc, _ := g.Check(context.Background(), checkReq(plan.TierPrestige, "jacket")); sc != nil {
		t.Fatalf("59 nudges should pass the prestige quota, got %+v", sc)
	}
	h.nudges = 60
	if sc, _ := g.Check(context.Background(), checkReq(plan.TierPrestige, "jacket")); sc == nil || sc.Limit != 60 {
		t.Fatalf("60 nudges should hit the prestige quota, got %+v", sc)
	}
}

func TestEliteUnlimited(t *testing.T) {
	h := &fakeHistory{nudges: 100000}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))
	sc, err := g.Check(context.Background(), checkReq(plan.TierElite, "a watch"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc != nil {
		t.Fatalf("elite should never hit a quota, got %+v", sc)
	}
	if h.nudgeCalls != 0 {
		t.Error("unlimited tier should not count nudges")
	}
}

func TestDailyWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = WindowDaily
	h := &fakeHistory{nudges: 3}
	g := New(cfg, h, models.FixedClock(wednesday))

	sc, err := g.Check(context.Background(), checkReq(plan.TierEssential, "snacks"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc == nil || sc.Limit != DefaultDailyLimit {
		t.Fatalf("expected daily limit short-circuit, got %+v", sc)
	}
	if !strings.Contains(sc.Message, "Daily nudge limit reached") {
		t.Errorf("message = %q", sc.Message)
	}
	if !h.sinceSeen.Equal(time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily window start = %v", h.sinceSeen)
	}

	h.nudges = 3
	if sc, _ := g.Check(context.Background(), checkReq(plan.TierPrestige, "snacks")); sc != nil {
		t.Errorf("daily window applies only to essential, got %+v", sc)
	}
}

func TestBudgetExceeded(t *testing.T) {
	h := &fakeHistory{spent: decimal.NewFromInt(999)}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))

	sc, err := g.Check(context.Background(), checkReq(plan.TierElite, "I want a $2 coffee"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc == nil || sc.Kind != KindBudget {
		t.Fatalf("expected budget short-circuit, got %+v", sc)
	}
	if !strings.Contains(sc.Message, "exceed your weekly budget of $1000") {
		t.Errorf("message = %q", sc.Message)
	}
	if !strings.HasPrefix(sc.Message, "[Elite]") {
		t.Errorf("message should carry the tier title: %q", sc.Message)
	}
	if sc.Record == nil || sc.Record.Message != sc.Message || sc.Record.Plan != plan.TierElite || sc.Record.ID == "" {
		t.Errorf("budget short-circuit should carry a record, got %+v", sc.Record)
	}
	if sc.Record.Source != models.SourceText {
		t.Errorf("record source = %q, want text", sc.Record.Source)
	}
	if !h.weekStart.Equal(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("week start = %v, want Monday 2025-06-09", h.weekStart)
	}
}

func TestBudgetExactlyAtCapPasses(t *testing.T) {
	h := &fakeHistory{spent: decimal.NewFromInt(999)}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))
	sc, err := g.Check(context.Background(), checkReq(plan.TierElite, "$1 sticker"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc != nil {
		t.Errorf("reaching the cap exactly should pass, got %+v", sc)
	}
}

func TestBudgetSkippedWithoutEnforcementOrAmount(t *testing.T) {
	h := &fakeHistory{spent: decimal.NewFromInt(5000)}
	g := New(DefaultConfig(), h, models.FixedClock(wednesday))

	if sc, _ := g.Check(context.Background(), checkReq(plan.TierEssential, "$500 bag")); sc != nil {
		t.Errorf("essential has no budget enforcement, got %+v", sc)
	}
	if sc, _ := g.Check(context.Background(), checkReq(plan.TierElite, "a bag")); sc != nil {
		t.Errorf("no amount means no budget check, got %+v", sc)
	}
	if h.spendCalls != 0 {
		t.Errorf("spending should not be summed, got %d calls", h.spendCalls)
	}
}

func TestGateOrder(t *testing.T) {
	h := &fakeHistory{nudges: 60, spent: decimal.NewFromInt(2000)}
	req := checkReq(plan.TierPrestige, "$50 shirt")

	sc, err := New(DefaultConfig(), h, models.FixedClock(wednesday)).Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc.Kind != KindBudget {
		t.Errorf("budget-first order returned %s", sc.Kind)
	}

	cfg := DefaultConfig()
	cfg.Order = OrderQuotaFirst
	sc, err = New(cfg, h, models.FixedClock(wednesday)).Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sc.Kind != KindQuota {
		t.Errorf("quota-first order returned %s", sc.Kind)
	}
}

func TestHistoryFailure(t *testing.T) {
	h := &fakeHistory{err: errors.New("db down")}
	_, err := New(DefaultConfig(), h, models.FixedClock(wednesday)).Check(context.Background(), checkReq(plan.TierEssential, "shoes"))
	if !errors.Is(err, models.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"I'm thinking of buying a $1200 smartwatch today", "1200", true},
		{"$1,250.50 for a bag", "1250.5", true},
		{"2 shirts for $45.99", "45.99", true},
		{"spend 300 on shoes", "300", true},
		{"$ 80 dinner", "80", true},
		{"no amount here", "0", false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.text)
		if ok != tt.ok || got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s,%v, want %s,%v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWindowBoundaries(t *testing.T) {
	sunday := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)
	if got := StartOfWeek(sunday); !got.Equal(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartOfWeek(sunday) = %v", got)
	}
	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if got := StartOfWeek(monday); !got.Equal(monday) {
		t.Errorf("StartOfWeek(monday) = %v", got)
	}
	if got := StartOfMonth(sunday); !got.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartOfMonth = %v", got)
	}
}

func TestParseConfigValues(t *testing.T) {
	if ParseOrder("quota_first") != OrderQuotaFirst || ParseOrder("") != OrderBudgetFirst {
		t.Error("unexpected order parsing")
	}
	if ParseWindow("DAILY") != WindowDaily || ParseWindow("weekly") != WindowMonthly {
		t.Error("unexpected window parsing")
	}
}
