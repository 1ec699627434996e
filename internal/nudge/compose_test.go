package nudge

import (
	"strings"
	"testing"
	"time"

	"github.com/Moneymaker1996/finivo-backend/internal/impulse"
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

var composeNow = time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)

func verdict(score int, impulsive bool, flags ...impulse.Flag) impulse.Verdict {
	return impulse.Verdict{Flags: flags, TotalTriggers: len(flags), Score: score, IsImpulsive: impulsive, Threshold: 4}
}

func mem(sim float64, age time.Duration) *models.RegretMemory {
	return &models.RegretMemory{Content: "bought a watch I never wear", Similarity: sim, Timestamp: composeNow.Add(-age)}
}

func input(v impulse.Verdict, tier plan.Tier, m *models.RegretMemory) ComposeInput {
	return ComposeInput{
		Verdict:         v,
		Policy:          plan.Resolve(tier),
		Memory:          m,
		Mode:            MemoryModeStrict,
		SimilarityFloor: 0.8,
		RecencyWindow:   30 * 24 * time.Hour,
		Now:             composeNow,
	}
}

func TestComposeFallback(t *testing.T) {
	for _, tier := range plan.Tiers() {
		c := Compose(input(verdict(1, false, impulse.FlagItem), tier, nil))
		if c.Outcome != OutcomeFallback || c.Persuasion || c.Script != nil {
			t.Errorf("%s: unexpected composition %+v", tier, c)
		}
		if c.Message != plan.Resolve(tier).FallbackResponses[0] {
			t.Errorf("%s: message = %q", tier, c.Message)
		}
	}
}

func TestComposePersuasionWithMemory(t *testing.T) {
	c := Compose(input(verdict(4, true, "I", "M", "U", "E"), plan.TierPrestige, mem(0.91, time.Hour)))
	if !c.Persuasion || c.Outcome != OutcomePersuasion {
		t.Fatalf("expected persuasion, got %+v", c)
	}
	if c.Message != Script(plan.ToneSmart).Nudge {
		t.Errorf("message = %q, want smart script nudge", c.Message)
	}
	if c.Script == nil || *c.Script != Script(plan.ToneSmart) {
		t.Errorf("script = %+v", c.Script)
	}

	basic := Compose(input(verdict(5, true, "I", "M", "U", "E", "S"), plan.TierEssential, mem(0.95, time.Hour)))
	if basic.Message != GenericWarning || basic.Script != nil {
		t.Errorf("basic tone persuasion = %+v", basic)
	}
}

func TestComposeImpulseWarning(t *testing.T) {
	c := Compose(input(verdict(4, true, "I", "M", "U", "E"), plan.TierEssential, nil))
	want := "This feels impulsive. Want to pause and revisit tomorrow? I can remind you if you want. (Triggers: I,M,U,E)"
	if c.Message != want {
		t.Errorf("message = %q, want %q", c.Message, want)
	}
	if c.Persuasion {
		t.Error("strict memory mode should not mark a memoryless warning as persuasion")
	}
	if c.Outcome != OutcomeImpulseWarning {
		t.Errorf("outcome = %s", c.Outcome)
	}

	in := input(verdict(4, true, "I", "M", "U", "E"), plan.TierEssential, nil)
	in.Mode = MemoryModeAware
	if !Compose(in).Persuasion {
		t.Error("memory-aware mode should mark impulsive warnings as persuasion")
	}

	elite := Compose(input(verdict(4, true, "I", "P", "U", "L"), plan.TierElite, nil))
	if !strings.HasPrefix(elite.Message, "I sense this is an impulse purchase.") || elite.Script == nil || *elite.Script != Script(plan.ToneLuxury) {
		t.Errorf("elite warning = %+v", elite)
	}
}

func TestComposeLowScoreImpulseWithMemory(t *testing.T) {
	c := Compose(input(verdict(3, true, "I", "U", "E"), plan.TierPrestige, mem(0.85, time.Hour)))
	if c.Outcome != OutcomeImpulseWarning {
		t.Fatalf("outcome = %s", c.Outcome)
	}
	if !strings.Contains(c.Message, "Impulse detected!") || !strings.Contains(c.Message, "(similarity: 0.85)") {
		t.Errorf("message = %q", c.Message)
	}
}

func TestComposeMemoryOnly(t *testing.T) {
	c := Compose(input(verdict(1, false, "I"), plan.TierEssential, mem(0.8, time.Hour)))
	want := "Heads up! Based on your recent memory: 'bought a watch I never wear', you may regret this purchase. Want to think twice? (similarity: 0.80)"
	if c.Message != want || c.Outcome != OutcomeMemory || c.Persuasion {
		t.Errorf("unexpected composition %+v", c)
	}
}

func TestComposeIgnoresWeakOrStaleMemory(t *testing.T) {
	if c := Compose(input(verdict(0, false), plan.TierEssential, mem(0.79, time.Hour))); c.Outcome != OutcomeFallback {
		t.Errorf("weak memory should not surface, got %s", c.Outcome)
	}
	if c := Compose(input(verdict(0, false), plan.TierEssential, mem(0.99, 31*24*time.Hour))); c.Outcome != OutcomeFallback {
		t.Errorf("stale memory should not surface, got %s", c.Outcome)
	}
}

func TestScriptVariants(t *testing.T) {
	if (Script(plan.ToneBasic) != models.EARNScript{}) {
		t.Error("basic tone should have no script")
	}
	for _, tone := range []plan.Tone{plan.ToneSmart, plan.ToneLuxury} {
		s := Script(tone)
		if s.Empathize == "" || s.Acknowledge == "" || s.Reinforce == "" || s.Nudge == "" {
			t.Errorf("%s script incomplete: %+v", tone, s)
		}
	}
}
