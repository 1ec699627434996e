// Package plan resolves subscription tiers into the feature policy that
// drives quota, budget and tone decisions.
package plan

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is a validated subscription tier.
type Tier string

const (
	TierEssential Tier = "essential"
	TierPrestige  Tier = "prestige"
	TierElite     Tier = "elite"
)

// Tone selects the voice of composed nudges.
type Tone string

const (
	ToneBasic  Tone = "basic"
	ToneSmart  Tone = "smart"
	ToneLuxury Tone = "luxury"
)

// Policy is the feature matrix for a single tier.
type Policy struct {
	Tier              Tier     `yaml:"-" json:"tier"`
	NudgeLimit        *int     `yaml:"nudge_limit" json:"nudge_limit"`
	ReportFrequency   string   `yaml:"report_frequency" json:"report_frequency"`
	AITone            Tone     `yaml:"ai_tone" json:"ai_tone"`
	BudgetEnforcement bool     `yaml:"budget_enforcement" json:"budget_enforcement"`
	GoalBasedNudging  bool     `yaml:"goal_based_nudging" json:"goal_based_nudging"`
	NudgeHistory      bool     `yaml:"nudge_history" json:"nudge_history"`
	DeepInsights      bool     `yaml:"deep_insights" json:"deep_insights"`
	LuxuryProfiling   bool     `yaml:"luxury_profiling" json:"luxury_profiling"`
	HumanFallback     bool     `yaml:"human_fallback" json:"human_fallback"`
	VoiceAccess       bool     `yaml:"voice_access" json:"voice_access"`
	EliteClub         bool     `yaml:"elite_club" json:"elite_club"`
	PlaidEnabled      bool     `yaml:"plaid_enabled" json:"plaid_enabled"`
	CustomRules       bool     `yaml:"custom_rules" json:"custom_rules"`
	FallbackResponses []string `yaml:"fallback_responses" json:"fallback_responses"`
}

// DefaultFallback is used when a policy carries no fallback responses.
const DefaultFallback = "All clear. Just a gentle reminder to stay mindful."

//go:embed plans.yaml
var plansYAML []byte

var policies map[Tier]Policy

func init() {
	var err error
	policies, err = parsePolicies(plansYAML)
	if err != nil {
		panic(fmt.Sprintf("plan: failed to load embedded plans.yaml: %v", err))
	}
}

func parsePolicies(data []byte) (map[Tier]Policy, error) {
	raw := map[string]Policy{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[Tier]Policy, len(raw))
	for _, t := range Tiers() {
		p, ok := raw[string(t)]
		if !ok {
			return nil, fmt.Errorf("missing tier %q", t)
		}
		if p.NudgeLimit != nil && *p.NudgeLimit < 0 {
			return nil, fmt.Errorf("tier %q: negative nudge_limit", t)
		}
		p.Tier = t
		out[t] = p
	}
	return out, nil
}

// Tiers lists the known tiers from least to most premium.
func Tiers() []Tier {
	return []Tier{TierEssential, TierPrestige, TierElite}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierEssential, TierPrestige, TierElite:
		return true
	}
	return false
}

// Title returns the capitalised tier name used in user-facing messages.
func (t Tier) Title() string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (t Tier) String() string { return string(t) }

// Sanitize maps a raw tier name to a known tier. Matching is exact; anything
// else, including legacy names and different casing, becomes essential.
func Sanitize(raw string) Tier {
	t := Tier(raw)
	if t.Valid() {
		return t
	}
	return TierEssential
}

// Resolve returns a copy of the policy for t. Unknown tiers resolve to essential.
func Resolve(t Tier) Policy {
	p := policies[Sanitize(string(t))]
	if p.NudgeLimit != nil {
		n := *p.NudgeLimit
		p.NudgeLimit = &n
	}
	p.FallbackResponses = append([]string(nil), p.FallbackResponses...)
	return p
}

// ResolvePlan sanitizes raw and returns its policy.
func ResolvePlan(raw string) Policy {
	return Resolve(Sanitize(raw))
}

// Limit returns the monthly nudge limit and whether one applies.
func (p Policy) Limit() (int, bool) {
	if p.NudgeLimit == nil {
		return 0, false
	}
	return *p.NudgeLimit, true
}

// Fallback returns the message used when no impulse is detected.
func (p Policy) Fallback() string {
	if len(p.FallbackResponses) == 0 || p.FallbackResponses[0] == "" {
		return DefaultFallback
	}
	return p.FallbackResponses[0]
}
