package nudge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Moneymaker1996/finivo-backend/internal/gate"
	"github.com/Moneymaker1996/finivo-backend/internal/impulse"
	"github.com/Moneymaker1996/finivo-backend/internal/memory"
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// HistoryProvider is the read side of the store used by the pipeline.
type HistoryProvider interface {
	impulse.HistoryReader
	gate.History
}

// Recorder persists nudge records.
type Recorder interface {
	AddNudge(ctx context.Context, rec models.NudgeRecord) error
}

// MemorySearcher finds regret memories related to an intent.
type MemorySearcher interface {
	SearchRecent(ctx context.Context, userID int64, query string, opts memory.SearchOptions) ([]models.RegretMemory, error)
}

// PlanLookup resolves a user's stored tier.
type PlanLookup interface {
	UserPlan(ctx context.Context, userID int64) (plan.Tier, error)
}

// Rewriter rephrases a composed nudge in the tier's tone.
type Rewriter interface {
	RewriteNudge(ctx context.Context, tone plan.Tone, intent, message string) (string, error)
}

// Opts holds engine configuration.
type Opts struct {
	Classifier      impulse.Options
	Gate            gate.Config
	MemoryMode      MemoryMode
	SimilarityFloor float64
	RecencyWindow   time.Duration
	Clock           models.Clock
	Memory          MemorySearcher
	Plans           PlanLookup
	Rewriter        Rewriter
}

// Option configures the engine.
type Option func(*Opts)

// WithClassifierOptions sets the classifier threshold and boost policy.
func WithClassifierOptions(o impulse.Options) Option {
	return func(opts *Opts) { opts.Classifier = o }
}

// WithGateConfig sets the quota and budget configuration.
func WithGateConfig(c gate.Config) Option {
	return func(opts *Opts) { opts.Gate = c }
}

// WithMemoryMode sets how memory affects persuasion.
func WithMemoryMode(m MemoryMode) Option {
	return func(opts *Opts) { opts.MemoryMode = m }
}

// WithSimilarityFloor sets the minimum similarity for a memory match.
func WithSimilarityFloor(f float64) Option {
	return func(opts *Opts) { opts.SimilarityFloor = f }
}

// WithRecencyWindow sets how far back memories are considered.
func WithRecencyWindow(d time.Duration) Option {
	return func(opts *Opts) { opts.RecencyWindow = d }
}

// WithClock sets the clock used by every stage.
func WithClock(c models.Clock) Option {
	return func(opts *Opts) { opts.Clock = c }
}

// WithMemory enables regret memory lookups.
func WithMemory(m MemorySearcher) Option {
	return func(opts *Opts) { opts.Memory = m }
}

// WithPlanLookup resolves tiers for requests that do not carry one.
func WithPlanLookup(p PlanLookup) Option {
	return func(opts *Opts) { opts.Plans = p }
}

// WithRewriter enables tone rewriting for smart and luxury tiers.
func WithRewriter(r Rewriter) Option {
	return func(opts *Opts) { opts.Rewriter = r }
}

// Request is a single evaluation.
type Request struct {
	UserID int64
	// Plan is the raw tier name, used only when the engine has no plan lookup.
	Plan   string
	Input  impulse.Input
	Source models.Source
}

// Result is the outcome of an evaluation.
type Result struct {
	Tier         plan.Tier            `json:"plan"`
	Signals      impulse.SignalVector `json:"signals"`
	Verdict      *impulse.Verdict     `json:"impulse,omitempty"`
	ShortCircuit *gate.ShortCircuit   `json:"short_circuit,omitempty"`
	Composition  *Composition         `json:"composition,omitempty"`
	Memory       *models.RegretMemory `json:"memory,omitempty"`
	Message      string               `json:"message"`
	Record       *models.NudgeRecord  `json:"record,omitempty"`
}

// Engine runs extract, gate, classify and compose for a spending intent.
type Engine struct {
	opts       Opts
	history    HistoryProvider
	recorder   Recorder
	classifier *impulse.Classifier
	gate       *gate.Gate
}

// NewEngine creates an engine over the given history and recorder.
func NewEngine(history HistoryProvider, recorder Recorder, options ...Option) *Engine {
	opts := Opts{
		Classifier:      impulse.StrictOptions(),
		Gate:            gate.DefaultConfig(),
		MemoryMode:      MemoryModeStrict,
		SimilarityFloor: memory.DefaultMinSimilarity,
		RecencyWindow:   memory.DefaultWindow,
		Clock:           models.SystemClock{},
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &Engine{
		opts:       opts,
		history:    history,
		recorder:   recorder,
		classifier: impulse.NewClassifier(opts.Classifier, history).WithClock(opts.Clock),
		gate:       gate.New(opts.Gate, history, opts.Clock),
	}
}

// Evaluate runs the pipeline. Every outcome except a quota short-circuit
// persists exactly one nudge record.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if req.UserID <= 0 {
		return nil, models.ErrInvalidUserID
	}
	if !req.Input.HasSignals() {
		return nil, models.ErrEmptyIntent
	}
	source := req.Source
	if source == "" {
		source = models.SourceText
	}

	tier, err := e.resolveTier(ctx, req)
	if err != nil {
		return nil, err
	}
	policy := plan.Resolve(tier)
	intent := describeIntent(req.Input)
	res := &Result{Tier: tier, Signals: impulse.Extract(req.Input)}

	sc, err := e.gate.Check(ctx, gate.CheckRequest{
		UserID: req.UserID,
		Tier:   tier,
		Policy: policy,
		Intent: intent,
		Text:   req.Input.Text,
		Source: source,
	})
	if err != nil {
		return nil, err
	}
	if sc != nil {
		res.ShortCircuit = sc
		res.Message = sc.Message
		if sc.Record != nil {
			if err := e.record(ctx, *sc.Record); err != nil {
				return nil, err
			}
			res.Record = sc.Record
		}
		return res, nil
	}

	verdict, err := e.classifier.Classify(ctx, req.UserID, res.Signals)
	if err != nil {
		return nil, err
	}
	res.Verdict = &verdict

	now := e.opts.Clock.Now()
	if e.opts.Memory != nil && strings.TrimSpace(req.Input.Text) != "" {
		matches, err := e.opts.Memory.SearchRecent(ctx, req.UserID, req.Input.Text, memory.SearchOptions{
			MinSimilarity: e.opts.SimilarityFloor,
			Window:        e.opts.RecencyWindow,
			Limit:         1,
		})
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			res.Memory = &matches[0]
		}
	}

	comp := Compose(ComposeInput{
		Verdict:         verdict,
		Policy:          policy,
		Memory:          res.Memory,
		Mode:            e.opts.MemoryMode,
		SimilarityFloor: e.opts.SimilarityFloor,
		RecencyWindow:   e.opts.RecencyWindow,
		Now:             now,
	})
	comp.Message = e.rewrite(ctx, policy.AITone, comp, intent)
	res.Composition = &comp
	res.Message = comp.Message

	rec := models.NudgeRecord{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		SpendingIntent: intent,
		Message:        comp.Message,
		Plan:           tier,
		Source:         source,
		Timestamp:      now,
		Script:         comp.Script,
	}
	if err := e.record(ctx, rec); err != nil {
		return nil, err
	}
	res.Record = &rec

	slog.Info("Engine.Evaluate: nudge composed", "user_id", req.UserID, "tier", tier,
		"outcome", comp.Outcome, "impulsive", verdict.IsImpulsive, "flags", verdict.FlagList())
	return res, nil
}

// resolveTier reads the stored tier when a plan lookup is configured.
// Request.Plan only applies to engines built without one.
func (e *Engine) resolveTier(ctx context.Context, req Request) (plan.Tier, error) {
	if e.opts.Plans == nil {
		return plan.Sanitize(req.Plan), nil
	}
	tier, err := e.opts.Plans.UserPlan(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: lookup plan for user %d: %w", models.ErrCollaboratorUnavailable, req.UserID, err)
	}
	return plan.Sanitize(string(tier)), nil
}

func (e *Engine) record(ctx context.Context, rec models.NudgeRecord) error {
	if err := e.recorder.AddNudge(ctx, rec); err != nil {
		return fmt.Errorf("%w: record nudge for user %d: %w", models.ErrCollaboratorUnavailable, rec.UserID, err)
	}
	return nil
}

// rewrite applies the tone rewriter to non-fallback nudges. Rewriter
// failures keep the static message.
func (e *Engine) rewrite(ctx context.Context, tone plan.Tone, comp Composition, intent string) string {
	if e.opts.Rewriter == nil || tone == plan.ToneBasic || comp.Outcome == OutcomeFallback {
		return comp.Message
	}
	out, err := e.opts.Rewriter.RewriteNudge(ctx, tone, intent, comp.Message)
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Warn("Engine.rewrite: keeping static message", "tone", tone, "error", err)
		return comp.Message
	}
	return out
}

// describeIntent renders the input as the stored spending intent: the text
// when present, otherwise the structured fields.
func describeIntent(in impulse.Input) string {
	if s := strings.TrimSpace(in.Text); s != "" {
		return s
	}
	var parts []string
	add := func(k, v string) { parts = append(parts, k+"="+v) }
	if in.Item != nil {
		add("item_name", *in.Item)
	}
	if in.Mood != nil {
		add("mood", *in.Mood)
	}
	if in.PatternMatch != nil {
		add("pattern_match", strconv.FormatBool(*in.PatternMatch))
	}
	if in.Urgency != nil {
		add("urgency", strconv.FormatBool(*in.Urgency))
	}
	if in.UrgencyText != nil {
		add("urgency_text", *in.UrgencyText)
	}
	if in.LastPurchaseDays != nil {
		add("last_purchase_days_ago", strconv.Itoa(*in.LastPurchaseDays))
	}
	if in.Situation != nil {
		add("situation", *in.Situation)
	}
	if in.Explanation != nil {
		add("explanation", *in.Explanation)
	}
	return strings.Join(parts, "; ")
}
