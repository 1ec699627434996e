// Package gate enforces the nudge quota and weekly budget checks that run
// before any impulse classification.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// Order selects which check runs first.
type Order string

const (
	OrderBudgetFirst Order = "budget_first"
	OrderQuotaFirst  Order = "quota_first"
)

// ParseOrder maps a config string to an Order, defaulting to budget first.
func ParseOrder(s string) Order {
	if Order(strings.ToLower(strings.TrimSpace(s))) == OrderQuotaFirst {
		return OrderQuotaFirst
	}
	return OrderBudgetFirst
}

// Window is the period nudges are counted over for the quota.
type Window string

const (
	WindowMonthly Window = "monthly"
	// WindowDaily applies the legacy per-day limit to the essential tier.
	WindowDaily Window = "daily"
)

// ParseWindow maps a config string to a Window, defaulting to monthly.
func ParseWindow(s string) Window {
	if Window(strings.ToLower(strings.TrimSpace(s))) == WindowDaily {
		return WindowDaily
	}
	return WindowMonthly
}

const (
	DefaultDailyLimit   = 3
	DefaultWeeklyBudget = 1000
)

// Config holds gate settings.
type Config struct {
	Order        Order
	Window       Window
	DailyLimit   int
	WeeklyBudget decimal.Decimal
}

// DefaultConfig returns budget-first ordering, a monthly quota window and a
// $1000 weekly budget.
func DefaultConfig() Config {
	return Config{
		Order:        OrderBudgetFirst,
		Window:       WindowMonthly,
		DailyLimit:   DefaultDailyLimit,
		WeeklyBudget: decimal.NewFromInt(DefaultWeeklyBudget),
	}
}

// History is the read side the gate needs.
type History interface {
	CountNudges(ctx context.Context, userID int64, tier plan.Tier, since time.Time) (int, error)
	SumSpending(ctx context.Context, userID int64, since, until time.Time) (decimal.Decimal, error)
}

// Kind identifies which check short-circuited.
type Kind string

const (
	KindQuota  Kind = "nudge_limit"
	KindBudget Kind = "weekly_budget"
)

// ShortCircuit ends the pipeline early. Record is set only when the outcome
// must be persisted.
type ShortCircuit struct {
	Kind    Kind                `json:"kind"`
	Message string              `json:"message"`
	Count   int                 `json:"count,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Spent   *decimal.Decimal    `json:"spent,omitempty"`
	Amount  *decimal.Decimal    `json:"amount,omitempty"`
	Cap     *decimal.Decimal    `json:"cap,omitempty"`
	Record  *models.NudgeRecord `json:"-"`
}

// CheckRequest is the input to Check. Intent is what gets recorded; the
// purchase amount is parsed from Text.
type CheckRequest struct {
	UserID int64
	Tier   plan.Tier
	Policy plan.Policy
	Intent string
	Text   string
	Source models.Source
}

// Gate runs the quota and budget checks.
type Gate struct {
	cfg     Config
	history History
	clock   models.Clock
}

// New creates a gate. A nil clock uses the system clock.
func New(cfg Config, history History, clock models.Clock) *Gate {
	if cfg.Order == "" {
		cfg.Order = OrderBudgetFirst
	}
	if cfg.Window == "" {
		cfg.Window = WindowMonthly
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.WeeklyBudget.IsZero() {
		cfg.WeeklyBudget = decimal.NewFromInt(DefaultWeeklyBudget)
	}
	if clock == nil {
		clock = models.SystemClock{}
	}
	return &Gate{cfg: cfg, history: history, clock: clock}
}

// Config returns the effective configuration.
func (g *Gate) Config() Config { return g.cfg }

// Check runs both checks in the configured order and returns the first
// short-circuit, or nil when the request may proceed.
func (g *Gate) Check(ctx context.Context, req CheckRequest) (*ShortCircuit, error) {
	checks := []func(context.Context, CheckRequest) (*ShortCircuit, error){g.checkBudget, g.checkQuota}
	if g.cfg.Order == OrderQuotaFirst {
		checks[0], checks[1] = checks[1], checks[0]
	}
	for _, check := range checks {
		sc, err := check(ctx, req)
		if err != nil {
			return nil, err
		}
		if sc != nil {
			slog.Info("Gate.Check: short-circuit", "user_id", req.UserID, "tier", req.Tier, "kind", sc.Kind)
			return sc, nil
		}
	}
	return nil, nil
}

func (g *Gate) checkQuota(ctx context.Context, req CheckRequest) (*ShortCircuit, error) {
	limit, finite := req.Policy.Limit()
	if !finite {
		return nil, nil
	}
	now := g.clock.Now()
	since := StartOfMonth(now)
	daily := g.cfg.Window == WindowDaily && req.Tier == plan.TierEssential
	if daily {
		since = StartOfDay(now)
		limit = g.cfg.DailyLimit
	}

	count, err := g.history.CountNudges(ctx, req.UserID, req.Tier, since)
	if err != nil {
		return nil, fmt.Errorf("%w: count nudges for user %d: %w", models.ErrCollaboratorUnavailable, req.UserID, err)
	}
	if count < limit {
		return nil, nil
	}

	msg := fmt.Sprintf("[%s] Monthly nudge limit reached. Consider upgrading for more support.", req.Tier.Title())
	if daily {
		msg = fmt.Sprintf("[%s] Daily nudge limit reached. Upgrade to continue.", req.Tier.Title())
	}
	return &ShortCircuit{Kind: KindQuota, Message: msg, Count: count, Limit: limit}, nil
}

func (g *Gate) checkBudget(ctx context.Context, req CheckRequest) (*ShortCircuit, error) {
	if !req.Policy.BudgetEnforcement {
		return nil, nil
	}
	amount, ok := ParseAmount(req.Text)
	if !ok {
		return nil, nil
	}
	now := g.clock.Now()
	spent, err := g.history.SumSpending(ctx, req.UserID, StartOfWeek(now), now)
	if err != nil {
		return nil, fmt.Errorf("%w: sum weekly spending for user %d: %w", models.ErrCollaboratorUnavailable, req.UserID, err)
	}
	if !spent.Add(amount).GreaterThan(g.cfg.WeeklyBudget) {
		return nil, nil
	}

	msg := fmt.Sprintf("[%s] Warning: This purchase will exceed your weekly budget of $%s.", req.Tier.Title(), g.cfg.WeeklyBudget.String())
	source := req.Source
	if source == "" {
		source = models.SourceText
	}
	budget := g.cfg.WeeklyBudget
	return &ShortCircuit{
		Kind:    KindBudget,
		Message: msg,
		Spent:   &spent,
		Amount:  &amount,
		Cap:     &budget,
		Record: &models.NudgeRecord{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			SpendingIntent: req.Intent,
			Message:        msg,
			Plan:           req.Tier,
			Source:         source,
			Timestamp:      now,
		},
	}, nil
}

var (
	dollarAmount = regexp.MustCompile(`\$\s?([0-9]+(?:\.[0-9]{1,2})?)`)
	bareAmount   = regexp.MustCompile(`([0-9]+(?:\.[0-9]{1,2})?)`)
)

// ParseAmount extracts the first dollar-prefixed amount from text, falling
// back to the first bare number. Thousands separators are ignored.
func ParseAmount(text string) (decimal.Decimal, bool) {
	clean := strings.ReplaceAll(text, ",", "")
	m := dollarAmount.FindStringSubmatch(clean)
	if m == nil {
		m = bareAmount.FindStringSubmatch(clean)
	}
	if m == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns Monday 00:00 of t's week in t's location.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}

// StartOfMonth returns 00:00 on the first of t's month in t's location.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
