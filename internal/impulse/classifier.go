package impulse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Moneymaker1996/finivo-backend/internal/models"
)

// Flag is one of the seven I.M.P.U.L.S.E. dimensions.
type Flag string

const (
	FlagItem         Flag = "I"
	FlagMood         Flag = "M"
	FlagPattern      Flag = "P"
	FlagUrgency      Flag = "U"
	FlagLastPurchase Flag = "L"
	FlagSituation    Flag = "S"
	FlagExplanation  Flag = "E"
)

// AllFlags lists the dimensions in canonical order.
var AllFlags = []Flag{FlagItem, FlagMood, FlagPattern, FlagUrgency, FlagLastPurchase, FlagSituation, FlagExplanation}

// Mode names a preset classification policy.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeSoft   Mode = "soft"
)

// ParseMode maps a config string to a Mode, defaulting to strict.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeSoft {
		return ModeSoft
	}
	return ModeStrict
}

// Options controls scoring. Zero fields take the strict defaults.
type Options struct {
	Threshold       int  `json:"threshold"`
	SoftBoost       bool `json:"soft_boost"`
	RecencyDays     int  `json:"recency_days"`
	RegretThreshold int  `json:"regret_threshold"`
}

const (
	DefaultStrictThreshold = 4
	DefaultSoftThreshold   = 3
	DefaultRecencyDays     = 3
	DefaultRegretThreshold = 3
)

// StrictOptions requires four structured flags.
func StrictOptions() Options {
	return Options{
		Threshold:       DefaultStrictThreshold,
		RecencyDays:     DefaultRecencyDays,
		RegretThreshold: DefaultRegretThreshold,
	}
}

// SoftOptions requires three, topped up by soft keyword hits.
func SoftOptions() Options {
	return Options{
		Threshold:       DefaultSoftThreshold,
		SoftBoost:       true,
		RecencyDays:     DefaultRecencyDays,
		RegretThreshold: DefaultRegretThreshold,
	}
}

// OptionsForMode returns the preset for m.
func OptionsForMode(m Mode) Options {
	if m == ModeSoft {
		return SoftOptions()
	}
	return StrictOptions()
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultStrictThreshold
	}
	if o.RecencyDays <= 0 {
		o.RecencyDays = DefaultRecencyDays
	}
	if o.RegretThreshold <= 0 {
		o.RegretThreshold = DefaultRegretThreshold
	}
	return o
}

// Decide turns a flag count and soft hit count into a score and decision.
// Soft hits only apply with SoftBoost and never lift the score past the
// threshold.
func Decide(flags, soft int, opts Options) (score int, impulsive bool) {
	opts = opts.withDefaults()
	score = flags
	if opts.SoftBoost && flags < opts.Threshold {
		score = min(flags+soft, opts.Threshold)
	}
	return score, score >= opts.Threshold
}

// HistoryReader supplies the per-user history behind the P and L flags.
type HistoryReader interface {
	CountRegrets(ctx context.Context, userID int64) (int, error)
	MostRecentPurchase(ctx context.Context, userID int64) (*time.Time, error)
}

// Verdict is the classifier output. Trace is diagnostic only.
type Verdict struct {
	Flags         []Flag              `json:"triggered_flags"`
	TotalTriggers int                 `json:"total_triggers"`
	SoftTriggers  int                 `json:"soft_triggers"`
	Score         int                 `json:"score"`
	Threshold     int                 `json:"threshold"`
	IsImpulsive   bool                `json:"is_impulsive"`
	Trace         map[string][]string `json:"-"`
}

// Has reports whether f fired.
func (v Verdict) Has(f Flag) bool {
	for _, g := range v.Flags {
		if g == f {
			return true
		}
	}
	return false
}

// FlagList renders the fired flags as "I,U,E".
func (v Verdict) FlagList() string {
	parts := make([]string, len(v.Flags))
	for i, f := range v.Flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

// Classifier scores signal vectors. It is safe for concurrent use.
type Classifier struct {
	opts    Options
	history HistoryReader
	clock   models.Clock
}

// NewClassifier creates a classifier. history may be nil, in which case the
// history-backed parts of P and L are skipped.
func NewClassifier(opts Options, history HistoryReader) *Classifier {
	return &Classifier{opts: opts.withDefaults(), history: history, clock: models.SystemClock{}}
}

// WithClock replaces the clock used for history-derived recency.
func (c *Classifier) WithClock(clock models.Clock) *Classifier {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Options returns the effective options.
func (c *Classifier) Options() Options { return c.opts }

// Classify scores v for userID.
func (c *Classifier) Classify(ctx context.Context, userID int64, v SignalVector) (Verdict, error) {
	trace := map[string][]string{}
	fired := map[Flag]bool{}
	mark := func(f Flag, why ...string) {
		fired[f] = true
		trace[string(f)] = append(trace[string(f)], why...)
	}

	if t, ok := firstTerm(v.Item, lex.Items); ok {
		if ess, isEssential := firstTerm(v.Item, lex.Essentials); isEssential {
			trace[string(FlagItem)] = []string{"essential:" + ess}
		} else {
			mark(FlagItem, t)
		}
	}

	if moods := matchTerms(v.Mood, lex.Moods); len(moods) > 0 {
		mark(FlagMood, moods...)
	}

	if v.PatternMatch {
		mark(FlagPattern, "explicit")
	} else if c.history != nil && userID > 0 {
		n, err := c.history.CountRegrets(ctx, userID)
		if err != nil {
			return Verdict{}, fmt.Errorf("%w: count regrets for user %d: %w", models.ErrCollaboratorUnavailable, userID, err)
		}
		if n >= c.opts.RegretThreshold {
			mark(FlagPattern, fmt.Sprintf("regrets=%d", n))
		}
	}

	if v.Urgency {
		mark(FlagUrgency, "urgency")
	}
	if terms := matchTerms(v.Situation+" "+v.Explanation, lex.Urgency); len(terms) > 0 {
		mark(FlagUrgency, terms...)
	}

	days, source, err := c.lastPurchaseDays(ctx, userID, v)
	if err != nil {
		return Verdict{}, err
	}
	if days < c.opts.RecencyDays {
		mark(FlagLastPurchase, fmt.Sprintf("days=%d source=%s", days, source))
	}

	if terms := matchTerms(v.Situation, lex.Situations); len(terms) > 0 {
		mark(FlagSituation, terms...)
	}

	if terms := matchTerms(v.Explanation, lex.Vague); len(terms) > 0 {
		mark(FlagExplanation, terms...)
	}

	soft := c.softHits(v, fired)
	if len(soft) > 0 {
		trace["soft"] = soft
	}

	verdict := Verdict{Threshold: c.opts.Threshold, SoftTriggers: len(soft), Trace: trace}
	for _, f := range AllFlags {
		if fired[f] {
			verdict.Flags = append(verdict.Flags, f)
		}
	}
	verdict.TotalTriggers = len(verdict.Flags)
	verdict.Score, verdict.IsImpulsive = Decide(verdict.TotalTriggers, verdict.SoftTriggers, c.opts)

	slog.Debug("Classifier.Classify: scored signals", "user_id", userID, "flags", verdict.FlagList(),
		"soft", verdict.SoftTriggers, "score", verdict.Score, "threshold", verdict.Threshold, "impulsive", verdict.IsImpulsive)
	return verdict, nil
}

// lastPurchaseDays applies the precedence explicit, phrase, history, sentinel.
// An untagged vector with a positive day count is treated as explicit.
func (c *Classifier) lastPurchaseDays(ctx context.Context, userID int64, v SignalVector) (int, RecencySource, error) {
	switch v.LastPurchaseSource {
	case RecencyExplicit, RecencyPhrase:
		return v.LastPurchaseDays, v.LastPurchaseSource, nil
	case "":
		if v.LastPurchaseDays > 0 {
			return v.LastPurchaseDays, RecencyExplicit, nil
		}
	}
	if c.history == nil || userID <= 0 {
		return NotRecentDays, RecencyDefault, nil
	}
	last, err := c.history.MostRecentPurchase(ctx, userID)
	if err != nil {
		return 0, "", fmt.Errorf("%w: most recent purchase for user %d: %w", models.ErrCollaboratorUnavailable, userID, err)
	}
	if last == nil {
		return NotRecentDays, RecencyDefault, nil
	}
	elapsed := c.clock.Now().Sub(*last)
	if elapsed < 0 {
		elapsed = 0
	}
	return int(elapsed / (24 * time.Hour)), RecencyHistory, nil
}

// softHits returns union-lexicon terms found across the text fields that
// were not already credited to a fired flag.
func (c *Classifier) softHits(v SignalVector, fired map[Flag]bool) []string {
	combined := strings.Join([]string{v.Item, v.Mood, v.Situation, v.Explanation}, " ")
	found := dropNested(matchTerms(combined, unionLexicon))

	credited := map[string]bool{}
	credit := func(f Flag, terms []string) {
		if !fired[f] {
			return
		}
		for _, t := range terms {
			credited[t] = true
		}
	}
	credit(FlagItem, lex.Items)
	credit(FlagMood, lex.Moods)
	credit(FlagUrgency, lex.Urgency)
	credit(FlagSituation, lex.Situations)
	credit(FlagExplanation, lex.Vague)

	var out []string
	for _, t := range found {
		if !credited[t] {
			out = append(out, t)
		}
	}
	return out
}
