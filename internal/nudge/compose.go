// Package nudge composes nudge messages and runs the full evaluation
// pipeline for a spending intent.
package nudge

import (
	"fmt"
	"time"

	"github.com/Moneymaker1996/finivo-backend/internal/impulse"
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

// MemoryMode controls whether an impulsive verdict alone is enough to mark
// a nudge as persuasion.
type MemoryMode string

const (
	// MemoryModeStrict marks persuasion only when a qualifying memory backs
	// the verdict.
	MemoryModeStrict MemoryMode = "strict_legacy"
	// MemoryModeAware marks every impulsive nudge as persuasion.
	MemoryModeAware MemoryMode = "memory_aware"
)

// ParseMemoryMode maps a config string to a MemoryMode, defaulting to strict.
func ParseMemoryMode(s string) MemoryMode {
	if MemoryMode(s) == MemoryModeAware {
		return MemoryModeAware
	}
	return MemoryModeStrict
}

// Outcome names the branch Compose took.
type Outcome string

const (
	OutcomeFallback       Outcome = "fallback"
	OutcomePersuasion     Outcome = "persuasion"
	OutcomeImpulseWarning Outcome = "impulse_warning"
	OutcomeMemory         Outcome = "memory"
)

const (
	// PersuasionScore is the minimum score for a memory-backed persuasion nudge.
	PersuasionScore = 4
	// GenericWarning is used when the tone has no script.
	GenericWarning = "This seems impulsive. You might want to wait before buying."
	// NoMemoryNote is the legacy note for searches with no strong match.
	NoMemoryNote = "No strongly related memories found, but use your best judgment before spending."
)

var tierWarnings = map[plan.Tier]string{
	plan.TierEssential: "This feels impulsive. Want to pause and revisit tomorrow? I can remind you if you want.",
	plan.TierPrestige:  "Impulse detected! Let's take a breather and reflect for 24 hours. If you want, I can help you set a reminder or talk through your reasons.",
	plan.TierElite:     "I sense this is an impulse purchase. Let's dig deeper: Is this truly aligned with your goals, or is it a fleeting urge? I can bookmark this and check in with you tomorrow, or we can discuss your motivations in detail.",
}

// ComposeInput is everything Compose needs. Memory is the best candidate
// match, if any; Compose decides whether it qualifies.
type ComposeInput struct {
	Verdict         impulse.Verdict
	Policy          plan.Policy
	Memory          *models.RegretMemory
	Mode            MemoryMode
	SimilarityFloor float64
	RecencyWindow   time.Duration
	Now             time.Time
}

// Composition is the composed nudge.
type Composition struct {
	Message    string             `json:"message"`
	Persuasion bool               `json:"persuasion"`
	Outcome    Outcome            `json:"outcome"`
	Script     *models.EARNScript `json:"script,omitempty"`
}

// Compose picks the nudge message for a verdict. It is pure.
func Compose(in ComposeInput) Composition {
	tone := in.Policy.AITone
	memory := qualifyingMemory(in)
	v := in.Verdict

	var c Composition
	switch {
	case !v.IsImpulsive && memory == nil:
		return Composition{Message: in.Policy.Fallback(), Outcome: OutcomeFallback}

	case v.IsImpulsive && memory != nil && v.Score >= PersuasionScore:
		c = Composition{Message: GenericWarning, Persuasion: true, Outcome: OutcomePersuasion}
		if hasScript(tone) {
			c.Message = Script(tone).Nudge
		}

	case v.IsImpulsive:
		c = Composition{
			Message:    warning(in.Policy.Tier, v),
			Persuasion: memory != nil || in.Mode == MemoryModeAware,
			Outcome:    OutcomeImpulseWarning,
		}
		if memory != nil {
			c.Message += "\n" + memoryLine(*memory)
		}

	default:
		c = Composition{Message: memoryLine(*memory), Outcome: OutcomeMemory}
	}

	if hasScript(tone) {
		s := Script(tone)
		c.Script = &s
	}
	return c
}

func warning(tier plan.Tier, v impulse.Verdict) string {
	msg, ok := tierWarnings[tier]
	if !ok {
		msg = GenericWarning
	}
	if len(v.Flags) > 0 {
		msg += fmt.Sprintf(" (Triggers: %s)", v.FlagList())
	}
	return msg
}

func memoryLine(m models.RegretMemory) string {
	return fmt.Sprintf("Heads up! Based on your recent memory: '%s', you may regret this purchase. Want to think twice? (similarity: %.2f)", m.Content, m.Similarity)
}

func qualifyingMemory(in ComposeInput) *models.RegretMemory {
	m := in.Memory
	if m == nil {
		return nil
	}
	floor := in.SimilarityFloor
	if floor <= 0 {
		floor = 0.8
	}
	if m.Similarity < floor {
		return nil
	}
	if in.RecencyWindow > 0 && !in.Now.IsZero() && m.Timestamp.Before(in.Now.Add(-in.RecencyWindow)) {
		return nil
	}
	return m
}
