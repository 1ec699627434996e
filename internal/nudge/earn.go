package nudge

import (
	"github.com/Moneymaker1996/finivo-backend/internal/models"
	"github.com/Moneymaker1996/finivo-backend/internal/plan"
)

var earnScripts = map[plan.Tone]models.EARNScript{
	plan.ToneSmart: {
		Empathize:   "It makes sense to want something that feels good right now.",
		Acknowledge: "Will this still matter to you a month from today?",
		Reinforce:   "Every dollar you hold back today moves you closer to your goal.",
		Nudge:       "Let's wait 24 hours. If you still want it tomorrow, it's a real want, not an impulse.",
	},
	plan.ToneLuxury: {
		Empathize:   "You have refined taste, and wanting the finest is natural.",
		Acknowledge: "Does this piece earn its place in your collection, or is it the moment talking?",
		Reinforce:   "True luxury is choosing with intention, never on impulse.",
		Nudge:       "Let me hold this for you until tomorrow. If it still speaks to you then, it deserves you.",
	},
}

// Script returns the E.A.R.N. script for tone. Tones without a script get
// the zero value.
func Script(tone plan.Tone) models.EARNScript {
	return earnScripts[tone]
}

func hasScript(tone plan.Tone) bool {
	_, ok := earnScripts[tone]
	return ok
}
